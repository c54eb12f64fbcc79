package stt

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pocketlabs/pocket-core/internal/audio"
	"github.com/pocketlabs/pocket-core/internal/clock"
	"github.com/pocketlabs/pocket-core/internal/config"
)

// Transcript is one recognizer emission. A stream produces zero or more
// partials followed by exactly one final transcript.
type Transcript struct {
	Text       string
	Final      bool
	Confidence float64
}

// Stream is one in-flight utterance. The caller owns lifecycle: Feed while
// capturing, then either End for the final transcript or Abort to discard.
type Stream interface {
	Feed(frame audio.Frame) error
	Partials() <-chan Transcript
	End(ctx context.Context) (Transcript, error)
	Abort()
}

// Engine opens transcription streams. Backends are pluggable; the engine
// decides nothing about when an utterance ends.
type Engine interface {
	Begin(ctx context.Context, utteranceID string) (Stream, error)
}

// Recognizer abstracts the underlying STT backend, one bounded segment per
// call.
type Recognizer interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int, channels int, final bool) (Transcript, error)
}

// NewEngine builds the engine selected by config.
func NewEngine(cfg config.STTConfig, capture config.CaptureConfig, clk clock.Clock, logger *slog.Logger) (Engine, error) {
	var rec Recognizer
	switch cfg.Mode {
	case "mock":
		rec = NewMockRecognizer()
	case "exec":
		er, err := NewExecRecognizer(cfg)
		if err != nil {
			return nil, err
		}
		rec = er
	default:
		return nil, fmt.Errorf("unknown stt mode %q", cfg.Mode)
	}
	return &recognizerEngine{cfg: cfg, capture: capture, rec: rec, clk: clk, log: logger.With(slog.String("component", "stt"))}, nil
}

type recognizerEngine struct {
	cfg     config.STTConfig
	capture config.CaptureConfig
	rec     Recognizer
	clk     clock.Clock
	log     *slog.Logger
}

func (e *recognizerEngine) Begin(ctx context.Context, utteranceID string) (Stream, error) {
	sctx, cancel := context.WithCancel(ctx)
	return &recognizerStream{
		engine:   e,
		id:       utteranceID,
		ctx:      sctx,
		cancel:   cancel,
		partials: make(chan Transcript, 4),
	}, nil
}

// recognizerStream buffers PCM and schedules interim transcriptions of the
// accumulated audio at the configured cadence, at most one in flight.
type recognizerStream struct {
	engine *recognizerEngine
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	buf         []byte
	inflight    bool
	lastPartial time.Time
	done        bool
	closed      bool

	partials chan Transcript
	wg       sync.WaitGroup
}

func (s *recognizerStream) Feed(frame audio.Frame) error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return fmt.Errorf("stream %s already ended", s.id)
	}
	s.buf = append(s.buf, pcmBytes(frame.Samples)...)
	schedule := s.shouldSchedulePartialLocked()
	var snapshot []byte
	if schedule {
		s.inflight = true
		snapshot = append([]byte(nil), s.buf...)
	}
	s.mu.Unlock()

	if schedule {
		s.wg.Add(1)
		go s.transcribePartial(snapshot)
	}
	return nil
}

func (s *recognizerStream) shouldSchedulePartialLocked() bool {
	interval := time.Duration(s.engine.cfg.PartialEveryMS) * time.Millisecond
	if interval <= 0 || s.inflight {
		return false
	}
	now := s.engine.clk.Now()
	if s.lastPartial.IsZero() || now.Sub(s.lastPartial) >= interval {
		s.lastPartial = now
		return true
	}
	return false
}

func (s *recognizerStream) transcribePartial(pcm []byte) {
	defer s.wg.Done()
	result, err := s.engine.rec.Transcribe(s.ctx, pcm, s.engine.capture.SampleRate, s.engine.capture.Channels, false)

	if err != nil {
		s.mu.Lock()
		s.inflight = false
		s.mu.Unlock()
		if s.ctx.Err() == nil {
			s.engine.log.Warn("partial transcription failed", slog.String("error", err.Error()))
		}
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight = false
	if s.done || s.closed || result.Text == "" {
		return
	}
	result.Final = false
	select {
	case s.partials <- result:
	default:
		// consumer is behind; stale partials are droppable
	}
}

func (s *recognizerStream) Partials() <-chan Transcript { return s.partials }

func (s *recognizerStream) End(ctx context.Context) (Transcript, error) {
	// A scheduled partial finishes and delivers before the stream is marked
	// done; Abort is the path that discards.
	s.wg.Wait()

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return Transcript{}, fmt.Errorf("stream %s already ended", s.id)
	}
	s.done = true
	pcm := append([]byte(nil), s.buf...)
	s.mu.Unlock()

	defer s.closePartials()

	result, err := s.engine.rec.Transcribe(ctx, pcm, s.engine.capture.SampleRate, s.engine.capture.Channels, true)
	if err != nil {
		return Transcript{}, fmt.Errorf("final transcription: %w", err)
	}
	result.Final = true
	return result, nil
}

// Abort discards the stream without waiting on the backend; a transcription
// already in flight sees its context cancelled and its late result dropped.
func (s *recognizerStream) Abort() {
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
	s.cancel()
	s.closePartials()
}

func (s *recognizerStream) closePartials() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.partials)
}

func pcmBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}
