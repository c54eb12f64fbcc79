package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/pocketlabs/pocket-core/internal/config"
	"github.com/pocketlabs/pocket-core/internal/intent"
)

// ActionResult is the outcome of dispatching one intent.
type ActionResult struct {
	Intent  intent.Tag
	Success bool
	Summary string // human-readable outcome, fed to the response model
	// Passthrough marks conversational turns: no function ran and the
	// user's text goes to the model verbatim.
	Passthrough bool
}

// Handler executes one action family. Implementations must respect ctx and
// return a spoken-form summary of what happened.
type Handler interface {
	Invoke(ctx context.Context, args map[string]string) (ActionResult, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, args map[string]string) (ActionResult, error)

func (f HandlerFunc) Invoke(ctx context.Context, args map[string]string) (ActionResult, error) {
	return f(ctx, args)
}

// Executor dispatches classified intents to registered handlers under the
// per-call budget. Failed calls are never retried; the failure is narrated
// back to the user instead.
type Executor struct {
	registry *Registry
	budget   time.Duration
	log      *slog.Logger
}

func New(registry *Registry, cfg config.HandlersConfig, logger *slog.Logger) *Executor {
	return &Executor{
		registry: registry,
		budget:   time.Duration(cfg.BudgetMS) * time.Millisecond,
		log:      logger.With(slog.String("component", "executor")),
	}
}

// Execute runs the handler for the intent. Chat and Unknown never reach a
// handler; they pass the user's words through untouched.
func (e *Executor) Execute(ctx context.Context, it intent.Intent, userText string) ActionResult {
	if it.Tag == intent.TagChat || it.Tag == intent.TagUnknown {
		return ActionResult{Intent: it.Tag, Success: true, Summary: userText, Passthrough: true}
	}

	handler, ok := e.registry.Lookup(it.Tag)
	if !ok {
		e.log.Warn("no handler registered", slog.String("tag", string(it.Tag)))
		return ActionResult{Intent: it.Tag, Success: false, Summary: "no handler is available for this request"}
	}

	hctx := ctx
	if e.budget > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, e.budget)
		defer cancel()
	}

	start := time.Now()
	result, err := handler.Invoke(hctx, it.Args)
	e.registry.recordInvocation(it.Tag, err == nil, time.Since(start))

	if err != nil {
		e.log.Warn("handler failed",
			slog.String("tag", string(it.Tag)),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)))
		return ActionResult{Intent: it.Tag, Success: false, Summary: err.Error()}
	}
	result.Intent = it.Tag
	return result
}
