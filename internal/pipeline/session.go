package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pocketlabs/pocket-core/internal/audio"
	"github.com/pocketlabs/pocket-core/internal/executor"
	"github.com/pocketlabs/pocket-core/internal/llm"
	"github.com/pocketlabs/pocket-core/internal/protocol"
	"github.com/pocketlabs/pocket-core/internal/speech"
)

type phase int32

const (
	phaseListening phase = iota
	phaseTranscribing
	phaseRouting
	phaseExecuting
	phaseResponding
)

func (ph phase) String() string {
	switch ph {
	case phaseListening:
		return "listening"
	case phaseTranscribing:
		return "transcribing"
	case phaseRouting:
		return "routing"
	case phaseExecuting:
		return "executing"
	case phaseResponding:
		return "responding"
	}
	return "unknown"
}

// session is one command exchange. Its worker goroutine owns the whole flow;
// everything inside honors ctx so preemption tears the session down from any
// phase.
type session struct {
	id     string
	source string
	text   string
	// epoch stamps every phrase this session enqueues; the speech controller
	// rejects phrases from an epoch older than its last Cancel.
	epoch uint64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	frames chan audio.Frame

	ph atomic.Int32
}

func (s *session) setPhase(ph phase) { s.ph.Store(int32(ph)) }
func (s *session) phase() phase      { return phase(s.ph.Load()) }
func (s *session) phaseName() string { return s.phase().String() }

func (p *Pipeline) runVoiceSession(s *session) {
	defer p.finish(s)
	s.setPhase(phaseListening)
	p.emit(protocol.SessionEvent{SessionID: s.id, Kind: protocol.EventSessionStarted, Source: s.source})

	stream, err := p.stt.Begin(s.ctx, s.id)
	if err != nil {
		p.log.Error("failed to open transcription stream", slog.String("error", err.Error()))
		p.apologize(s)
		p.emit(protocol.SessionEvent{SessionID: s.id, Kind: protocol.EventSessionCompleted, Source: s.source, Error: err.Error()})
		return
	}

	var pump sync.WaitGroup
	pump.Add(1)
	go func() {
		defer pump.Done()
		for tr := range stream.Partials() {
			p.emit(protocol.SessionEvent{
				SessionID: s.id,
				Kind:      protocol.EventTranscriptPartial,
				Source:    s.source,
				Text:      tr.Text,
			})
		}
	}()

	silence := time.Duration(p.cfg.SilenceTimeoutMS) * time.Millisecond
	maxUtterance := time.Duration(p.cfg.MaxUtteranceMS) * time.Millisecond

	// Hard stop if frames dry up entirely; frame timestamps drive the
	// normal end-of-utterance decision.
	guard := p.clk.NewTimer(maxUtterance + silence)
	defer guard.Stop()

	var utterStart, lastVoice time.Time
	listening := true
	for listening {
		select {
		case <-s.ctx.Done():
			stream.Abort()
			pump.Wait()
			p.emit(protocol.SessionEvent{SessionID: s.id, Kind: protocol.EventSessionCancelled, Source: s.source})
			return
		case <-guard.C():
			listening = false
		case frame := <-s.frames:
			if utterStart.IsZero() {
				utterStart = frame.Timestamp
				lastVoice = frame.Timestamp
			}
			if err := stream.Feed(frame); err != nil {
				p.log.Warn("frame feed failed", slog.String("error", err.Error()))
			}
			if frame.RMS() >= voiceRMS {
				lastVoice = frame.Timestamp
			}
			if frame.Timestamp.Sub(lastVoice) >= silence || frame.Timestamp.Sub(utterStart) >= maxUtterance {
				listening = false
			}
		}
	}

	s.setPhase(phaseTranscribing)
	final, err := stream.End(s.ctx)
	pump.Wait()
	if err != nil {
		if s.ctx.Err() != nil {
			p.emit(protocol.SessionEvent{SessionID: s.id, Kind: protocol.EventSessionCancelled, Source: s.source})
			return
		}
		p.log.Warn("final transcription failed", slog.String("error", err.Error()))
		p.apologize(s)
		p.emit(protocol.SessionEvent{SessionID: s.id, Kind: protocol.EventSessionCompleted, Source: s.source, Error: err.Error()})
		return
	}
	p.emit(protocol.SessionEvent{
		SessionID: s.id,
		Kind:      protocol.EventTranscriptFinal,
		Source:    s.source,
		Text:      final.Text,
	})

	p.processCommand(s, final.Text)
}

func (p *Pipeline) runTextSession(s *session) {
	defer p.finish(s)
	s.setPhase(phaseRouting)
	p.emit(protocol.SessionEvent{SessionID: s.id, Kind: protocol.EventSessionStarted, Source: s.source, Text: s.text})
	p.processCommand(s, s.text)
}

func (p *Pipeline) runAnnounceSession(s *session) {
	defer p.finish(s)
	s.setPhase(phaseResponding)
	p.emit(protocol.SessionEvent{SessionID: s.id, Kind: protocol.EventSessionStarted, Source: s.source, Text: s.text})
	p.emit(protocol.SessionEvent{SessionID: s.id, Kind: protocol.EventResponseChunk, Source: s.source, Text: s.text})
	p.speech.Enqueue(s.epoch, s.id, s.text)
	if err := p.speech.Wait(s.ctx); err != nil {
		p.emit(protocol.SessionEvent{SessionID: s.id, Kind: protocol.EventSessionCancelled, Source: s.source})
		return
	}
	p.emit(protocol.SessionEvent{SessionID: s.id, Kind: protocol.EventSessionCompleted, Source: s.source})
}

// apologize speaks the fixed fallback when a session dies before it can
// produce a real response.
func (p *Pipeline) apologize(s *session) {
	s.setPhase(phaseResponding)
	p.emit(protocol.SessionEvent{SessionID: s.id, Kind: protocol.EventResponseChunk, Source: s.source, Text: p.cfg.Apology})
	p.speech.Enqueue(s.epoch, s.id, p.cfg.Apology)
	if err := p.speech.Wait(s.ctx); err != nil {
		p.log.Debug("apology interrupted", slog.String("session_id", s.id))
	}
}

// processCommand routes, executes and responds. Shared by voice and text
// sessions once a final transcript exists.
func (p *Pipeline) processCommand(s *session, text string) {
	s.setPhase(phaseRouting)
	it := p.router.Route(s.ctx, text)
	p.emit(protocol.SessionEvent{
		SessionID: s.id,
		Kind:      protocol.EventIntentRouted,
		Source:    s.source,
		Intent:    string(it.Tag),
		Args:      it.Args,
	})
	if s.ctx.Err() != nil {
		p.emit(protocol.SessionEvent{SessionID: s.id, Kind: protocol.EventSessionCancelled, Source: s.source})
		return
	}

	s.setPhase(phaseExecuting)
	result := p.exec.Execute(s.ctx, it, text)
	if !result.Passthrough {
		success := result.Success
		p.emit(protocol.SessionEvent{
			SessionID: s.id,
			Kind:      protocol.EventActionResult,
			Source:    s.source,
			Intent:    string(result.Intent),
			Text:      result.Summary,
			Success:   &success,
		})
	}
	if s.ctx.Err() != nil {
		p.emit(protocol.SessionEvent{SessionID: s.id, Kind: protocol.EventSessionCancelled, Source: s.source})
		return
	}

	s.setPhase(phaseResponding)
	if err := p.respond(s, result, text); err != nil {
		p.emit(protocol.SessionEvent{SessionID: s.id, Kind: protocol.EventSessionCancelled, Source: s.source})
		return
	}
	p.emit(protocol.SessionEvent{SessionID: s.id, Kind: protocol.EventSessionCompleted, Source: s.source})
}

// respond streams the model reply into the phrase buffer and out through
// speech. A generation failure never leaves the user hanging; the fixed
// apology is spoken instead.
func (p *Pipeline) respond(s *session, result executor.ActionResult, userText string) error {
	var promptText string
	if result.Passthrough {
		promptText = userText
	} else {
		promptText = llm.FunctionPrompt(string(result.Intent), result.Success, result.Summary, userText)
	}
	p.history.AddUser(promptText)

	req := llm.RequestFromConfig(p.llmCfg)
	req.SessionID = s.id
	req.System = p.history.System()
	req.Messages = p.history.Messages()

	genCtx, cancel := context.WithTimeout(s.ctx, time.Duration(p.cfg.ResponseIdleMS)*time.Millisecond)
	defer cancel()

	buffer := speech.NewPhraseBuffer(p.cfg.PhraseMaxChars)
	var reply strings.Builder
	err := p.generator.Generate(genCtx, req, func(chunk llm.Chunk) error {
		if s.ctx.Err() != nil {
			return s.ctx.Err()
		}
		if chunk.Content == "" {
			return nil
		}
		reply.WriteString(chunk.Content)
		p.emit(protocol.SessionEvent{
			SessionID: s.id,
			Kind:      protocol.EventResponseChunk,
			Source:    s.source,
			Text:      chunk.Content,
		})
		for _, phrase := range buffer.Add(chunk.Content) {
			p.speech.Enqueue(s.epoch, s.id, phrase)
		}
		return nil
	})
	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}
	if err != nil {
		p.log.Warn("response generation failed",
			slog.String("session_id", s.id),
			slog.String("error", err.Error()))
		p.emit(protocol.SessionEvent{SessionID: s.id, Kind: protocol.EventResponseChunk, Source: s.source, Text: p.cfg.Apology})
		p.speech.Enqueue(s.epoch, s.id, p.cfg.Apology)
		p.history.AddAssistant(p.cfg.Apology)
		return p.speech.Wait(s.ctx)
	}

	if rest := buffer.Flush(); rest != "" {
		p.speech.Enqueue(s.epoch, s.id, rest)
	}
	p.history.AddAssistant(reply.String())
	return p.speech.Wait(s.ctx)
}
