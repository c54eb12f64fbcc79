package protocol

import "time"

// SessionEventKind enumerates the pipeline notifications surfaced to UI
// consumers and the session timeline.
type SessionEventKind string

const (
	EventSessionStarted    SessionEventKind = "session_started"
	EventTranscriptPartial SessionEventKind = "transcript_partial"
	EventTranscriptFinal   SessionEventKind = "transcript_final"
	EventIntentRouted      SessionEventKind = "intent_routed"
	EventActionResult      SessionEventKind = "action_result"
	EventResponseChunk     SessionEventKind = "response_chunk"
	EventSpeechState       SessionEventKind = "speech_state"
	EventSessionCancelled  SessionEventKind = "session_cancelled"
	EventSessionCompleted  SessionEventKind = "session_completed"
)

// SessionEvent is one entry of a session's observable timeline.
type SessionEvent struct {
	SessionID string            `json:"session_id"`
	Kind      SessionEventKind  `json:"kind"`
	Source    string            `json:"source,omitempty"` // voice or text
	Text      string            `json:"text,omitempty"`
	Intent    string            `json:"intent,omitempty"`
	Args      map[string]string `json:"args,omitempty"`
	Success   *bool             `json:"success,omitempty"`
	Error     string            `json:"error,omitempty"`
	Speaking  *bool             `json:"speaking,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// TextInput is a text command submitted over the bus.
type TextInput struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// TimerFired announces an expired timer set through the timer handler.
type TimerFired struct {
	TimerID   string    `json:"timer_id"`
	Label     string    `json:"label"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectSessionEvents = "pocket.session.events"
	SubjectInputText     = "pocket.input.text"
	SubjectInputCancel   = "pocket.input.cancel"
	SubjectTimerFired    = "pocket.timer.fired"
)
