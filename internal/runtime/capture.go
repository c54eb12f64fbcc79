package runtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pocketlabs/pocket-core/internal/audio"
	"github.com/pocketlabs/pocket-core/internal/wake"
)

// frameConsumer is the slice of the pipeline the capture loop feeds.
type frameConsumer interface {
	NotifyWake(ev wake.Event) bool
	ObserveFrame(frame audio.Frame)
}

// wakeObserver scores frames and reports wake cues.
type wakeObserver interface {
	Observe(frame audio.Frame) *wake.Event
}

// captureLoop moves frames from the source into wake detection and the
// pipeline. Wake events are handed to a separate dispatcher goroutine: a
// preemption in progress blocks NotifyWake, and frame consumption must keep
// real-time pace regardless.
type captureLoop struct {
	source   audio.Source
	detector wakeObserver
	consumer frameConsumer
	onWake   func(ev wake.Event, accepted bool)
	log      *slog.Logger

	wakes chan wake.Event
}

func newCaptureLoop(source audio.Source, detector wakeObserver, consumer frameConsumer, onWake func(wake.Event, bool), logger *slog.Logger) *captureLoop {
	return &captureLoop{
		source:   source,
		detector: detector,
		consumer: consumer,
		onWake:   onWake,
		log:      logger.With(slog.String("component", "capture")),
		wakes:    make(chan wake.Event, 4),
	}
}

func (l *captureLoop) run(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(2)
	go func() {
		defer wg.Done()
		l.dispatchWakes(ctx)
	}()
	go func() {
		defer wg.Done()
		l.consumeFrames(ctx)
	}()
}

func (l *captureLoop) consumeFrames(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-l.source.Frames():
			if !ok {
				return
			}
			if ev := l.detector.Observe(frame); ev != nil {
				select {
				case l.wakes <- *ev:
				default:
					l.log.Warn("wake dispatch backlogged, cue dropped")
				}
			}
			l.consumer.ObserveFrame(frame)
		}
	}
}

func (l *captureLoop) dispatchWakes(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-l.wakes:
			accepted := l.consumer.NotifyWake(ev)
			if l.onWake != nil {
				l.onWake(ev, accepted)
			}
		}
	}
}
