package wake

import (
	"log/slog"
	"time"

	"github.com/pocketlabs/pocket-core/internal/audio"
	"github.com/pocketlabs/pocket-core/internal/clock"
	"github.com/pocketlabs/pocket-core/internal/config"
)

// Event is emitted once per detected wake cue.
type Event struct {
	Timestamp  time.Time
	Confidence float64
}

// Scorer scores a window of recent audio against the wake cue. Stateless per
// window; must be safe to call once per frame.
type Scorer interface {
	Score(window []audio.Frame) (float64, error)
}

type state int

const (
	stateIdle state = iota
	stateCooling
)

// Detector keeps a sliding window of the most recent audio, re-scores it on
// every frame, and emits an Event when confidence crosses the sensitivity
// threshold outside the debounce interval.
type Detector struct {
	cfg    config.WakeConfig
	scorer Scorer
	clk    clock.Clock
	log    *slog.Logger

	window   []audio.Frame
	windowMS time.Duration

	st           state
	coolingSince time.Time
	lastHigh     time.Time
}

func NewDetector(cfg config.WakeConfig, scorer Scorer, clk clock.Clock, logger *slog.Logger) *Detector {
	return &Detector{
		cfg:      cfg,
		scorer:   scorer,
		clk:      clk,
		log:      logger.With(slog.String("component", "wake-detector")),
		windowMS: time.Duration(cfg.WindowMS) * time.Millisecond,
	}
}

// Observe feeds one frame and returns a non-nil Event when the wake cue
// fires. Scoring errors are logged and skipped; detection never blocks or
// fails the capture loop.
func (d *Detector) Observe(frame audio.Frame) *Event {
	d.push(frame)

	confidence, err := d.scorer.Score(d.window)
	if err != nil {
		d.log.Warn("wake scoring failed", slog.String("error", err.Error()))
		return nil
	}

	now := d.clk.Now()
	high := confidence >= d.cfg.Sensitivity

	switch d.st {
	case stateCooling:
		debounce := time.Duration(d.cfg.DebounceMS) * time.Millisecond
		hard := time.Duration(d.cfg.HardTimeoutMS) * time.Millisecond
		if now.Sub(d.coolingSince) >= hard {
			d.st = stateIdle
		} else if high {
			d.lastHigh = now
			return nil
		} else if now.Sub(d.lastHigh) >= debounce {
			d.st = stateIdle
		} else {
			return nil
		}
		if !high {
			return nil
		}
		fallthrough
	case stateIdle:
		if !high {
			return nil
		}
		d.st = stateCooling
		d.coolingSince = now
		d.lastHigh = now
		return &Event{Timestamp: now, Confidence: confidence}
	}
	return nil
}

// push appends the frame and trims the window back to the configured span.
func (d *Detector) push(frame audio.Frame) {
	d.window = append(d.window, frame)
	var total time.Duration
	for _, f := range d.window {
		total += f.Duration()
	}
	for len(d.window) > 1 && total > d.windowMS {
		total -= d.window[0].Duration()
		d.window = d.window[1:]
	}
}
