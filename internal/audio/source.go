package audio

import (
	"time"
)

// silenceSource emits silent frames at real-time cadence. It stands in for a
// hardware capture integration, which lives outside this runtime; wake
// detection never fires on it but the rest of the pipeline stays exercised
// through the text path.
type silenceSource struct {
	frames chan Frame
	done   chan struct{}
}

// NewSilenceSource starts a real-time silent capture loop.
func NewSilenceSource(sampleRate int, frameDuration time.Duration) Source {
	s := &silenceSource{
		frames: make(chan Frame, 8),
		done:   make(chan struct{}),
	}
	samples := int(frameDuration.Seconds() * float64(sampleRate))
	if samples <= 0 {
		samples = sampleRate / 50
	}
	go func() {
		defer close(s.frames)
		ticker := time.NewTicker(frameDuration)
		defer ticker.Stop()
		for {
			select {
			case <-s.done:
				return
			case ts := <-ticker.C:
				frame := Frame{
					Samples:    make([]int16, samples),
					SampleRate: sampleRate,
					Timestamp:  ts,
				}
				select {
				case s.frames <- frame:
				default:
					// capture never blocks; a slow consumer drops frames
				}
			}
		}
	}()
	return s
}

func (s *silenceSource) Frames() <-chan Frame { return s.frames }

func (s *silenceSource) Close() error {
	close(s.done)
	return nil
}

// ChanSource adapts a plain channel into a Source. Tests and embedders that
// own their capture loop feed frames through it.
type ChanSource struct {
	Ch chan Frame
}

func NewChanSource(buffer int) *ChanSource {
	return &ChanSource{Ch: make(chan Frame, buffer)}
}

func (c *ChanSource) Frames() <-chan Frame { return c.Ch }

func (c *ChanSource) Close() error {
	close(c.Ch)
	return nil
}
