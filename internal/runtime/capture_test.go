package runtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pocketlabs/pocket-core/internal/audio"
	"github.com/pocketlabs/pocket-core/internal/wake"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// alwaysWake reports a cue on every frame.
type alwaysWake struct{}

func (alwaysWake) Observe(frame audio.Frame) *wake.Event {
	return &wake.Event{Timestamp: frame.Timestamp, Confidence: 1}
}

// blockedConsumer stalls inside NotifyWake until released, the way a
// preemption waiting on session teardown does.
type blockedConsumer struct {
	release  chan struct{}
	observed atomic.Int64
	wakes    atomic.Int64
}

func (c *blockedConsumer) NotifyWake(wake.Event) bool {
	c.wakes.Add(1)
	<-c.release
	return true
}

func (c *blockedConsumer) ObserveFrame(audio.Frame) { c.observed.Add(1) }

func TestCaptureKeepsConsumingWhileWakeHandlingBlocks(t *testing.T) {
	source := audio.NewChanSource(64)
	consumer := &blockedConsumer{release: make(chan struct{})}
	loop := newCaptureLoop(source, alwaysWake{}, consumer, nil, newLogger())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	loop.run(ctx, &wg)

	const frames = 20
	for i := 0; i < frames; i++ {
		source.Ch <- audio.Frame{Samples: make([]int16, 160), SampleRate: 16000, Timestamp: time.Now()}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && consumer.observed.Load() < frames {
		time.Sleep(2 * time.Millisecond)
	}
	if got := consumer.observed.Load(); got < frames {
		t.Fatalf("capture stalled behind wake handling: observed %d of %d frames", got, frames)
	}
	if got := consumer.wakes.Load(); got != 1 {
		t.Fatalf("expected exactly one in-flight wake while blocked, got %d", got)
	}

	close(consumer.release)
	cancel()
	wg.Wait()
}

func TestCaptureReportsWakeOutcome(t *testing.T) {
	source := audio.NewChanSource(4)
	consumer := &blockedConsumer{release: make(chan struct{})}
	close(consumer.release)

	var outcomes atomic.Int64
	loop := newCaptureLoop(source, alwaysWake{}, consumer, func(_ wake.Event, accepted bool) {
		if accepted {
			outcomes.Add(1)
		}
	}, newLogger())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	loop.run(ctx, &wg)

	source.Ch <- audio.Frame{Samples: make([]int16, 160), SampleRate: 16000, Timestamp: time.Now()}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && outcomes.Load() == 0 {
		time.Sleep(2 * time.Millisecond)
	}
	if outcomes.Load() == 0 {
		t.Fatal("wake outcome callback never fired")
	}

	cancel()
	wg.Wait()
}
