package stt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pocketlabs/pocket-core/internal/audio"
	"github.com/pocketlabs/pocket-core/internal/clock"
	"github.com/pocketlabs/pocket-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type scriptedRecognizer struct {
	mu    sync.Mutex
	calls []bool // final flag per call
	text  string
	err   error
}

func (r *scriptedRecognizer) Transcribe(_ context.Context, pcm []byte, _ int, _ int, final bool) (Transcript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, final)
	if r.err != nil {
		return Transcript{}, r.err
	}
	return Transcript{Text: r.text, Confidence: 0.9}, nil
}

func testEngine(rec Recognizer, partialEveryMS int, clk clock.Clock) *recognizerEngine {
	return &recognizerEngine{
		cfg:     config.STTConfig{Mode: "mock", PartialEveryMS: partialEveryMS},
		capture: config.CaptureConfig{SampleRate: 16000, Channels: 1},
		rec:     rec,
		clk:     clk,
		log:     newLogger(),
	}
}

func pcmFrame(clk clock.Clock) audio.Frame {
	return audio.Frame{Samples: make([]int16, 320), SampleRate: 16000, Timestamp: clk.Now()}
}

func TestEndReturnsFinalTranscript(t *testing.T) {
	rec := &scriptedRecognizer{text: "turn on the office lights"}
	engine := testEngine(rec, 0, clock.NewFake())

	stream, err := engine.Begin(context.Background(), "utt-1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	clk := clock.NewFake()
	for i := 0; i < 10; i++ {
		if err := stream.Feed(pcmFrame(clk)); err != nil {
			t.Fatalf("feed: %v", err)
		}
	}
	final, err := stream.End(context.Background())
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if !final.Final {
		t.Fatal("End must mark the transcript final")
	}
	if final.Text != "turn on the office lights" {
		t.Fatalf("unexpected text %q", final.Text)
	}
	if _, err := stream.End(context.Background()); err == nil {
		t.Fatal("second End must fail")
	}
}

func TestPartialCadence(t *testing.T) {
	rec := &scriptedRecognizer{text: "so far"}
	clk := clock.NewFake()
	engine := testEngine(rec, 500, clk)

	stream, err := engine.Begin(context.Background(), "utt-2")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	// 1.5s of audio at 20ms per frame schedules partials at 0ms, 500ms, 1000ms.
	for i := 0; i < 75; i++ {
		if err := stream.Feed(pcmFrame(clk)); err != nil {
			t.Fatalf("feed: %v", err)
		}
		clk.Advance(20 * time.Millisecond)
	}
	if _, err := stream.End(context.Background()); err != nil {
		t.Fatalf("end: %v", err)
	}

	var partials int
	for tr := range stream.Partials() {
		if tr.Final {
			t.Fatal("partials channel must not carry finals")
		}
		partials++
	}
	if partials == 0 || partials > 3 {
		t.Fatalf("expected between 1 and 3 partials, got %d", partials)
	}
}

func TestAbortDiscardsStream(t *testing.T) {
	rec := &scriptedRecognizer{text: "never seen"}
	engine := testEngine(rec, 0, clock.NewFake())

	stream, err := engine.Begin(context.Background(), "utt-3")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	clk := clock.NewFake()
	if err := stream.Feed(pcmFrame(clk)); err != nil {
		t.Fatalf("feed: %v", err)
	}
	stream.Abort()

	if err := stream.Feed(pcmFrame(clk)); err == nil {
		t.Fatal("Feed after Abort must fail")
	}
	if _, ok := <-stream.Partials(); ok {
		t.Fatal("partials channel must be closed after Abort")
	}
}

func TestFinalTranscriptionErrorSurfaces(t *testing.T) {
	rec := &scriptedRecognizer{err: errors.New("backend down")}
	engine := testEngine(rec, 0, clock.NewFake())

	stream, err := engine.Begin(context.Background(), "utt-4")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := stream.End(context.Background()); err == nil || !strings.Contains(err.Error(), "backend down") {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestMockRecognizerReportsCoverage(t *testing.T) {
	rec := NewMockRecognizer()
	pcm := make([]byte, 16000*2) // one second of 16kHz mono
	got, err := rec.Transcribe(context.Background(), pcm, 16000, 1, true)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if !strings.Contains(got.Text, "1000ms") {
		t.Fatalf("unexpected mock text %q", got.Text)
	}
}
