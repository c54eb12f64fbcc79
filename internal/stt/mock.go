package stt

import (
	"context"
	"fmt"
)

// mockRecognizer fabricates transcripts locally so the pipeline can run
// without an STT backend installed.
type mockRecognizer struct{}

func NewMockRecognizer() Recognizer { return mockRecognizer{} }

func (mockRecognizer) Transcribe(_ context.Context, pcm []byte, sampleRate int, channels int, final bool) (Transcript, error) {
	if sampleRate <= 0 || channels <= 0 {
		return Transcript{}, fmt.Errorf("invalid audio format %d/%d", sampleRate, channels)
	}
	ms := len(pcm) / 2 / channels * 1000 / sampleRate
	text := fmt.Sprintf("mock transcript covering %dms of audio", ms)
	if !final {
		text = fmt.Sprintf("mock partial covering %dms of audio", ms)
	}
	return Transcript{Text: text, Confidence: 0.95}, nil
}
