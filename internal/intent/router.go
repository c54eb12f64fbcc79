package intent

import (
	"context"
	"log/slog"
	"time"

	"github.com/pocketlabs/pocket-core/internal/config"
)

// Router wraps a Model with the classification budget and confidence
// threshold. Routing never fails: anything the model cannot place inside the
// budget comes back as Unknown, which downstream treats as conversation.
type Router struct {
	model Model
	cfg   config.IntentConfig
	log   *slog.Logger
}

func NewRouter(model Model, cfg config.IntentConfig, logger *slog.Logger) *Router {
	return &Router{model: model, cfg: cfg, log: logger.With(slog.String("component", "intent-router"))}
}

type classifyOutcome struct {
	intent Intent
	err    error
}

// Route classifies the transcript within the configured budget. The model
// call keeps running in its goroutine until its context is cancelled; Route
// itself returns as soon as the budget expires.
func (r *Router) Route(ctx context.Context, text string) Intent {
	budget := time.Duration(r.cfg.BudgetMS) * time.Millisecond
	cctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	outcome := make(chan classifyOutcome, 1)
	go func() {
		result, err := r.model.Classify(cctx, text)
		outcome <- classifyOutcome{intent: result, err: err}
	}()

	select {
	case <-cctx.Done():
		r.log.Warn("classification exceeded budget",
			slog.Int("budget_ms", r.cfg.BudgetMS),
			slog.Int("text_len", len(text)))
		return Intent{Tag: TagUnknown, Confidence: 0}
	case out := <-outcome:
		if out.err != nil {
			r.log.Warn("classification failed", slog.String("error", out.err.Error()))
			return Intent{Tag: TagUnknown, Confidence: 0}
		}
		if out.intent.Tag != TagUnknown && out.intent.Tag != TagChat && out.intent.Confidence < r.cfg.Threshold {
			r.log.Info("confidence below threshold, downgrading to unknown",
				slog.String("tag", string(out.intent.Tag)),
				slog.Float64("confidence", out.intent.Confidence))
			return Intent{Tag: TagUnknown, Confidence: out.intent.Confidence}
		}
		return out.intent
	}
}
