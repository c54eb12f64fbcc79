package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pocketlabs/pocket-core/internal/clock"
	"github.com/pocketlabs/pocket-core/internal/protocol"
)

// TimerHandler sets countdown timers. Firing is announced through the
// notify callback; timers outlive the request that created them and die
// with the handler's base context.
type TimerHandler struct {
	clk    clock.Clock
	notify func(protocol.TimerFired)
	log    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]string // id -> label
}

func NewTimerHandler(ctx context.Context, clk clock.Clock, notify func(protocol.TimerFired), logger *slog.Logger) *TimerHandler {
	hctx, cancel := context.WithCancel(ctx)
	return &TimerHandler{
		clk:    clk,
		notify: notify,
		log:    logger.With(slog.String("component", "timer-handler")),
		ctx:    hctx,
		cancel: cancel,
		active: make(map[string]string),
	}
}

func (h *TimerHandler) Invoke(_ context.Context, args map[string]string) (ActionResult, error) {
	raw, ok := args["duration_s"]
	if !ok {
		return ActionResult{}, fmt.Errorf("timer: no duration given")
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return ActionResult{}, fmt.Errorf("timer: invalid duration %q", raw)
	}
	duration := time.Duration(seconds) * time.Second
	label := args["label"]

	id := uuid.NewString()
	h.mu.Lock()
	h.active[id] = label
	h.mu.Unlock()

	timer := h.clk.NewTimer(duration)
	h.wg.Add(1)
	go h.wait(id, label, timer)

	h.log.Info("timer set",
		slog.String("timer_id", id),
		slog.Duration("duration", duration),
		slog.String("label", label))
	return ActionResult{Success: true, Summary: fmt.Sprintf("timer set for %s", speakDuration(duration))}, nil
}

func (h *TimerHandler) wait(id, label string, timer clock.Timer) {
	defer h.wg.Done()
	defer timer.Stop()

	select {
	case <-h.ctx.Done():
		return
	case firedAt := <-timer.C():
		h.mu.Lock()
		delete(h.active, id)
		h.mu.Unlock()
		if h.notify != nil {
			h.notify(protocol.TimerFired{TimerID: id, Label: label, Timestamp: firedAt})
		}
	}
}

// Active returns the number of running timers.
func (h *TimerHandler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.active)
}

func (h *TimerHandler) Close() {
	h.cancel()
	h.wg.Wait()
}

func speakDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int(d/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
