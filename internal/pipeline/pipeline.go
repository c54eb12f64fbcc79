package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pocketlabs/pocket-core/internal/audio"
	"github.com/pocketlabs/pocket-core/internal/clock"
	"github.com/pocketlabs/pocket-core/internal/config"
	"github.com/pocketlabs/pocket-core/internal/executor"
	"github.com/pocketlabs/pocket-core/internal/intent"
	"github.com/pocketlabs/pocket-core/internal/llm"
	"github.com/pocketlabs/pocket-core/internal/protocol"
	"github.com/pocketlabs/pocket-core/internal/speech"
	"github.com/pocketlabs/pocket-core/internal/stt"
	"github.com/pocketlabs/pocket-core/internal/wake"
)

// voiceRMS is the frame energy treated as speech while listening. Frames
// below it count toward the end-of-utterance silence window.
const voiceRMS = 300.0

// Sources a session can originate from.
const (
	SourceVoice    = "voice"
	SourceText     = "text"
	SourceAnnounce = "announce"
)

// Pipeline owns the single active session and drives it through listening,
// transcription, routing, execution and the spoken response. At most one
// session exists at a time; a new input preempts the current session, which
// must fully release (speech silenced, transcription aborted) before the
// next one starts.
type Pipeline struct {
	cfg    config.PipelineConfig
	llmCfg config.LLMConfig
	clk    clock.Clock
	log    *slog.Logger

	stt       stt.Engine
	router    *intent.Router
	exec      *executor.Executor
	generator llm.Generator
	history   *llm.History
	speech    *speech.Controller

	events chan protocol.SessionEvent

	// startMu serializes preempt-then-install so two racing entry points can
	// never both own a live session.
	startMu sync.Mutex

	mu     sync.Mutex
	active *session

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Deps struct {
	STT       stt.Engine
	Router    *intent.Router
	Executor  *executor.Executor
	Generator llm.Generator
	History   *llm.History
	Speech    *speech.Controller
	Clock     clock.Clock
}

func New(ctx context.Context, cfg config.PipelineConfig, llmCfg config.LLMConfig, deps Deps, logger *slog.Logger) *Pipeline {
	pctx, cancel := context.WithCancel(ctx)
	p := &Pipeline{
		cfg:       cfg,
		llmCfg:    llmCfg,
		clk:       deps.Clock,
		log:       logger.With(slog.String("component", "pipeline")),
		stt:       deps.STT,
		router:    deps.Router,
		exec:      deps.Executor,
		generator: deps.Generator,
		history:   deps.History,
		speech:    deps.Speech,
		events:    make(chan protocol.SessionEvent, 64),
		ctx:       pctx,
		cancel:    cancel,
	}
	p.speech.OnState(func(sessionID string, speaking bool) {
		state := speaking
		p.emit(protocol.SessionEvent{
			SessionID: sessionID,
			Kind:      protocol.EventSpeechState,
			Speaking:  &state,
		})
	})
	return p
}

// Events is the pipeline's observable feed. Consumers must keep up; entries
// are dropped rather than ever stalling a session.
func (p *Pipeline) Events() <-chan protocol.SessionEvent { return p.events }

// Close cancels any active session and waits for its release.
func (p *Pipeline) Close() {
	p.CancelActive()
	p.cancel()
	p.wg.Wait()
}

// State reports the active session's phase, or "idle".
func (p *Pipeline) State() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return "idle"
	}
	return p.active.phaseName()
}

// NotifyWake starts a voice session, preempting whatever is active; a wake
// during a spoken response is barge-in and silences it. The detector's
// debounce keeps a single cue from triggering twice.
func (p *Pipeline) NotifyWake(ev wake.Event) bool {
	s := p.startSession(SourceVoice)
	if s == nil {
		return false
	}
	p.log.Debug("wake accepted", slog.Float64("confidence", ev.Confidence))
	p.wg.Add(1)
	go p.runVoiceSession(s)
	return true
}

// SubmitText starts a text session, preempting whatever is active.
func (p *Pipeline) SubmitText(text string) {
	if text == "" {
		return
	}
	s := p.startSession(SourceText)
	if s == nil {
		return
	}
	s.text = text
	p.wg.Add(1)
	go p.runTextSession(s)
}

// Announce speaks a system notification, such as an expired timer. It
// preempts like text input; an alarm that waits politely is not an alarm.
func (p *Pipeline) Announce(text string) {
	if text == "" {
		return
	}
	s := p.startSession(SourceAnnounce)
	if s == nil {
		return
	}
	s.text = text
	p.wg.Add(1)
	go p.runAnnounceSession(s)
}

// CancelActive stops the current session: speech is silenced, transcription
// aborted, nothing new is spoken. No-op when idle.
func (p *Pipeline) CancelActive() bool {
	p.mu.Lock()
	s := p.active
	p.active = nil
	p.mu.Unlock()
	if s == nil {
		return false
	}
	p.release(s)
	return true
}

// ObserveFrame feeds captured audio to the active voice session. Never
// blocks; when the session is not listening the frame is dropped.
func (p *Pipeline) ObserveFrame(frame audio.Frame) {
	p.mu.Lock()
	s := p.active
	p.mu.Unlock()
	if s == nil || s.source != SourceVoice {
		return
	}
	select {
	case s.frames <- frame:
	default:
	}
}

// startSession preempts whatever is active and installs a fresh session.
// startMu is held across the release and the install; a concurrent entry
// point waits its turn instead of slipping into the empty slot. Returns nil
// when the pipeline is shutting down.
func (p *Pipeline) startSession(source string) *session {
	p.startMu.Lock()
	defer p.startMu.Unlock()

	p.mu.Lock()
	old := p.active
	p.active = nil
	p.mu.Unlock()
	if old != nil {
		p.release(old)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx.Err() != nil {
		return nil
	}
	sctx, cancel := context.WithCancel(p.ctx)
	s := &session{
		id:     uuid.NewString(),
		source: source,
		epoch:  p.speech.Epoch(),
		ctx:    sctx,
		cancel: cancel,
		done:   make(chan struct{}),
		frames: make(chan audio.Frame, 32),
	}
	p.active = s
	return s
}

// release cancels a session and blocks until its worker has fully stopped.
// Speech is cancelled first so audio stops inside the cancel bound rather
// than after the worker unwinds.
func (p *Pipeline) release(s *session) {
	s.cancel()
	p.speech.Cancel()
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		p.log.Error("session did not release in time", slog.String("session_id", s.id))
	}
}

// finish clears the active slot if this session still owns it.
func (p *Pipeline) finish(s *session) {
	close(s.done)
	p.mu.Lock()
	if p.active == s {
		p.active = nil
	}
	p.mu.Unlock()
	p.wg.Done()
}

func (p *Pipeline) emit(ev protocol.SessionEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = p.clk.Now()
	}
	select {
	case p.events <- ev:
	default:
		p.log.Warn("event feed full, dropping event", slog.String("kind", string(ev.Kind)))
	}
}
