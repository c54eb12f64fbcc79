package llm

import (
	"context"
	"strings"
	"time"
)

type mockGenerator struct{}

func NewMockGenerator() Generator { return &mockGenerator{} }

// Generate streams a canned completion word by word so downstream phrase
// buffering sees realistic chunk boundaries.
func (m *mockGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}

	last := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			last = req.Messages[i].Content
			break
		}
	}
	content := "[mock completion for " + strings.TrimSpace(last) + "]"
	words := strings.Fields(content)
	start := time.Now()
	for i, word := range words {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		piece := word
		if i < len(words)-1 {
			piece += " "
		}
		if err := consumer(Chunk{
			SessionID: req.SessionID,
			Content:   piece,
			Partial:   i < len(words)-1,
			Latency:   time.Since(start),
		}); err != nil {
			return err
		}
	}
	return nil
}
