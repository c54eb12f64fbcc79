package speech

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pocketlabs/pocket-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// echoSynth returns the phrase text as PCM immediately.
type echoSynth struct{}

func (echoSynth) Synthesize(_ context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk, 1)
	errs := make(chan error, 1)
	chunks <- SynthChunk{SessionID: req.SessionID, PCM: []byte(req.Text), Final: true}
	close(chunks)
	close(errs)
	return chunks, errs
}

// stuckSynth blocks until its context is cancelled.
type stuckSynth struct{}

func (stuckSynth) Synthesize(ctx context.Context, _ SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		<-ctx.Done()
		errs <- ctx.Err()
	}()
	return chunks, errs
}

func testTTSConfig() config.TTSConfig {
	return config.TTSConfig{Mode: "mock", Voice: "test", SampleRate: 22050, Channels: 1}
}

func TestPlaysQueuedPhrasesInOrder(t *testing.T) {
	sink := &MemorySink{}
	c := NewController(context.Background(), testTTSConfig(), echoSynth{}, sink, newLogger())
	c.Start()
	t.Cleanup(c.Close)

	c.Enqueue(c.Epoch(), "s-1", "first phrase.")
	c.Enqueue(c.Epoch(), "s-1", "second phrase.")
	c.Enqueue(c.Epoch(), "s-1", "third phrase.")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	chunks := sink.Chunks()
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, want := range []string{"first phrase.", "second phrase.", "third phrase."} {
		if string(chunks[i].PCM) != want {
			t.Fatalf("chunk %d: got %q, want %q", i, chunks[i].PCM, want)
		}
	}
}

func TestCancelStopsPlaybackPromptly(t *testing.T) {
	sink := &MemorySink{}
	c := NewController(context.Background(), testTTSConfig(), stuckSynth{}, sink, newLogger())
	c.Start()
	t.Cleanup(c.Close)

	c.Enqueue(c.Epoch(), "s-1", "this synthesis never finishes.")
	c.Enqueue(c.Epoch(), "s-1", "and this one never starts.")
	waitFor(t, "playback to begin", c.Speaking)

	start := time.Now()
	if !c.Cancel() {
		t.Fatal("cancel must report interrupted speech")
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("cancel took %v, must return within the cancel bound", elapsed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("controller did not go idle after cancel: %v", err)
	}
	if len(sink.Chunks()) != 0 {
		t.Fatal("no audio should reach the sink after cancel")
	}
	if sink.Resets() != 1 {
		t.Fatalf("expected one sink reset, got %d", sink.Resets())
	}
}

func TestCancelWhenIdleIsNoOp(t *testing.T) {
	sink := &MemorySink{}
	c := NewController(context.Background(), testTTSConfig(), echoSynth{}, sink, newLogger())
	c.Start()
	t.Cleanup(c.Close)

	if c.Cancel() {
		t.Fatal("cancel with nothing playing must report no interruption")
	}
	if sink.Resets() != 0 {
		t.Fatal("idle cancel must not reset the sink")
	}
}

func TestStaleEpochPhraseIsDropped(t *testing.T) {
	sink := &MemorySink{}
	c := NewController(context.Background(), testTTSConfig(), echoSynth{}, sink, newLogger())
	c.Start()
	t.Cleanup(c.Close)

	stale := c.Epoch()
	c.Cancel()

	c.Enqueue(stale, "s-1", "left over from the cancelled session.")
	c.Enqueue(c.Epoch(), "s-2", "the new session speaks.")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	chunks := sink.Chunks()
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if string(chunks[0].PCM) != "the new session speaks." {
		t.Fatalf("wrong phrase played: %q", chunks[0].PCM)
	}
}

func TestSpeakingStateTransitions(t *testing.T) {
	sink := &MemorySink{}
	c := NewController(context.Background(), testTTSConfig(), echoSynth{}, sink, newLogger())

	var mu sync.Mutex
	var states []bool
	c.OnState(func(_ string, speaking bool) {
		mu.Lock()
		states = append(states, speaking)
		mu.Unlock()
	})
	c.Start()
	t.Cleanup(c.Close)

	c.Enqueue(c.Epoch(), "s-1", "short phrase.")
	waitFor(t, "speaking on then off", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) >= 2
	})

	// delivery order matches occurrence order: on strictly before off
	mu.Lock()
	defer mu.Unlock()
	if !states[0] || states[1] {
		t.Fatalf("state changes out of order: %v", states)
	}
}
