package audio

import (
	"math"
	"time"
)

// Frame is a fixed-duration block of mono PCM samples with a monotonic
// timestamp. Frames are owned by the capture loop and borrowed by consumers
// for the duration of a single call; they are never persisted.
type Frame struct {
	Samples    []int16
	SampleRate int
	Timestamp  time.Time
}

// Duration returns the play time covered by the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// RMS returns the root-mean-square energy of the frame.
func (f Frame) RMS() float64 {
	if len(f.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range f.Samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(f.Samples)))
}

// Source yields audio frames indefinitely. Implementations retry transient
// capture errors internally; the channel closes only on shutdown.
type Source interface {
	Frames() <-chan Frame
	Close() error
}
