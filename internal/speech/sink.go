package speech

import "sync"

// Sink is where synthesized PCM goes. Reset drops anything buffered so a
// cancel silences playback immediately instead of letting queued audio
// drain.
type Sink interface {
	Write(chunk SynthChunk) error
	Reset()
}

// NullSink discards audio. Used when no playback device is wired, which
// keeps the rest of the pipeline exercisable headless.
type NullSink struct{}

func (NullSink) Write(SynthChunk) error { return nil }
func (NullSink) Reset()                 {}

// MemorySink records chunks for inspection in tests.
type MemorySink struct {
	mu     sync.Mutex
	chunks []SynthChunk
	resets int
}

func (s *MemorySink) Write(chunk SynthChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunk)
	return nil
}

func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
}

func (s *MemorySink) Chunks() []SynthChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SynthChunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

func (s *MemorySink) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}
