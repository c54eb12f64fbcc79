package executor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/pocketlabs/pocket-core/internal/intent"
)

// handlerState tracks per-handler invocation health.
type handlerState struct {
	handler    Handler
	invoked    int64
	failed     int64
	lastCalled time.Time
}

// Registry maps intent tags to their handlers and exposes registration and
// invocation counts as metrics.
type Registry struct {
	log *slog.Logger

	mu       sync.RWMutex
	handlers map[intent.Tag]*handlerState

	meter        metric.Meter
	invocations  metric.Int64Counter
	latency      metric.Float64Histogram
	handlerGauge metric.Int64ObservableGauge
}

func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{
		log:      logger.With(slog.String("component", "handler-registry")),
		handlers: make(map[intent.Tag]*handlerState),
		meter:    otel.Meter("github.com/pocketlabs/pocket-core/runtime"),
	}
	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return r
}

// Register binds a handler to a tag. Later registrations replace earlier
// ones; runtime wiring decides the final set.
func (r *Registry) Register(tag intent.Tag, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[tag] = &handlerState{handler: handler}
	r.log.Info("handler registered", slog.String("tag", string(tag)))
}

func (r *Registry) Lookup(tag intent.Tag) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.handlers[tag]
	if !ok {
		return nil, false
	}
	return state.handler, true
}

// Tags returns the registered tags, for readiness reporting.
func (r *Registry) Tags() []intent.Tag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]intent.Tag, 0, len(r.handlers))
	for tag := range r.handlers {
		tags = append(tags, tag)
	}
	return tags
}

func (r *Registry) recordInvocation(tag intent.Tag, success bool, elapsed time.Duration) {
	r.mu.Lock()
	if state, ok := r.handlers[tag]; ok {
		state.invoked++
		if !success {
			state.failed++
		}
		state.lastCalled = time.Now()
	}
	r.mu.Unlock()

	attrs := metric.WithAttributes(
		attribute.String("tag", string(tag)),
		attribute.Bool("success", success),
	)
	if r.invocations != nil {
		r.invocations.Add(context.Background(), 1, attrs)
	}
	if r.latency != nil {
		r.latency.Record(context.Background(), elapsed.Seconds(), attrs)
	}
}

func (r *Registry) initMetrics() error {
	if r.meter == nil {
		return nil
	}
	counter, err := r.meter.Int64Counter("pocket.handlers.invocations",
		metric.WithDescription("Handler invocations by tag and outcome"))
	if err != nil {
		return err
	}
	r.invocations = counter

	histogram, err := r.meter.Float64Histogram("pocket.handlers.latency",
		metric.WithDescription("Handler invocation latency in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return err
	}
	r.latency = histogram

	gauge, err := r.meter.Int64ObservableGauge("pocket.handlers.registered",
		metric.WithDescription("Number of registered intent handlers"))
	if err != nil {
		return err
	}
	r.handlerGauge = gauge
	_, err = r.meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		r.mu.RLock()
		count := int64(len(r.handlers))
		r.mu.RUnlock()
		obs.ObserveInt64(gauge, count)
		return nil
	}, gauge)
	return err
}
