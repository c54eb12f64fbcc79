package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/pocketlabs/pocket-core/internal/config"
)

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Request describes a language model call: the pinned system prompt plus the
// bounded conversation window ending with the current user turn.
type Request struct {
	SessionID   string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Chunk represents streamed model output.
type Chunk struct {
	SessionID        string
	Content          string
	Partial          bool
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

// Generator defines a pluggable LLM backend. Generate blocks until the reply
// finishes streaming or ctx is cancelled; chunks arrive through consumer in
// order.
type Generator interface {
	Generate(ctx context.Context, req Request, consumer func(Chunk) error) error
}

// NewGenerator builds the backend selected by config.
func NewGenerator(cfg config.LLMConfig) (Generator, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockGenerator(), nil
	case "ollama":
		return NewOllamaGenerator(cfg.Endpoint, cfg.Model), nil
	case "exec":
		return NewExecGenerator(cfg.Command)
	default:
		return nil, fmt.Errorf("unknown llm mode %q", cfg.Mode)
	}
}

// RequestFromConfig seeds generation defaults from config.
func RequestFromConfig(cfg config.LLMConfig) Request {
	return Request{MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature}
}
