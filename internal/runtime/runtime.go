package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/pocketlabs/pocket-core/internal/audio"
	"github.com/pocketlabs/pocket-core/internal/bus"
	"github.com/pocketlabs/pocket-core/internal/clock"
	"github.com/pocketlabs/pocket-core/internal/config"
	"github.com/pocketlabs/pocket-core/internal/eventstore"
	"github.com/pocketlabs/pocket-core/internal/executor"
	"github.com/pocketlabs/pocket-core/internal/intent"
	"github.com/pocketlabs/pocket-core/internal/llm"
	"github.com/pocketlabs/pocket-core/internal/natsserver"
	"github.com/pocketlabs/pocket-core/internal/pipeline"
	"github.com/pocketlabs/pocket-core/internal/protocol"
	"github.com/pocketlabs/pocket-core/internal/speech"
	"github.com/pocketlabs/pocket-core/internal/stt"
	"github.com/pocketlabs/pocket-core/internal/wake"
)

// Runtime assembles the full daemon: embedded bus, persistence, capture,
// wake detection, the command pipeline and the operational HTTP surface.
type Runtime struct {
	cfg            config.Config
	logger         *slog.Logger
	httpServer     *http.Server
	telemetryClose func(context.Context) error
	ready          atomic.Bool
	wg             sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{cfg: cfg, logger: logger}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tel, err := buildTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetryClose = tel.Close

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("connect to bus: %w", err)
	}
	defer busClient.Close()

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer store.Close()

	clk := clock.New()

	sttEngine, err := stt.NewEngine(r.cfg.STT, r.cfg.Capture, clk, r.logger)
	if err != nil {
		return fmt.Errorf("build stt engine: %w", err)
	}
	model, err := intent.NewModel(r.cfg.Intent)
	if err != nil {
		return fmt.Errorf("build intent model: %w", err)
	}
	router := intent.NewRouter(model, r.cfg.Intent, r.logger)

	registry := executor.NewRegistry(r.logger)
	exec := executor.New(registry, r.cfg.Handlers, r.logger)

	generator, err := llm.NewGenerator(r.cfg.LLM)
	if err != nil {
		return fmt.Errorf("build llm generator: %w", err)
	}
	history := llm.NewHistory(llm.DefaultSystemPrompt, r.cfg.LLM.MaxHistory)

	synth, err := speech.NewSynthesizer(r.cfg.TTS)
	if err != nil {
		return fmt.Errorf("build synthesizer: %w", err)
	}
	controller := speech.NewController(ctx, r.cfg.TTS, synth, speech.NullSink{}, r.logger)
	controller.Start()
	defer controller.Close()

	pipe := pipeline.New(ctx, r.cfg.Pipeline, r.cfg.LLM, pipeline.Deps{
		STT:       sttEngine,
		Router:    router,
		Executor:  exec,
		Generator: generator,
		History:   history,
		Speech:    controller,
		Clock:     clk,
	}, r.logger)
	defer pipe.Close()

	timerHandler := executor.NewTimerHandler(ctx, clk, func(fired protocol.TimerFired) {
		if payload, err := json.Marshal(fired); err == nil {
			if err := busClient.Conn().Publish(protocol.SubjectTimerFired, payload); err != nil {
				r.logger.Warn("failed to publish timer event", slog.String("error", err.Error()))
			}
		}
		text := "Your timer is done."
		if fired.Label != "" {
			text = fmt.Sprintf("Your timer is done: %s.", fired.Label)
		}
		pipe.Announce(text)
	}, r.logger)
	defer timerHandler.Close()

	registry.Register(intent.TagLights, executor.NewLightsHandler(r.cfg.Handlers.Lights, r.logger))
	registry.Register(intent.TagTimer, timerHandler)
	registry.Register(intent.TagWeather, executor.NewWeatherHandler(r.cfg.Handlers.Weather, r.logger))
	registry.Register(intent.TagNews, executor.NewNewsHandler(r.cfg.Handlers.News, clk, r.logger))
	registry.Register(intent.TagSearch, executor.NewSearchHandler(r.cfg.Handlers.Search, r.logger))
	registry.Register(intent.TagCalendar, executor.NewCalendarHandler(store, clk, r.logger))
	registry.Register(intent.TagTask, executor.NewTaskHandler(store, r.logger))

	counters, err := newSessionCounters()
	if err != nil {
		r.logger.Warn("failed to initialize session metrics", slog.String("error", err.Error()))
	}

	if r.cfg.Wake.Enabled {
		frameDuration := time.Duration(r.cfg.Capture.FrameDurationMS) * time.Millisecond
		source := audio.NewSilenceSource(r.cfg.Capture.SampleRate, frameDuration)
		defer source.Close()
		detector := wake.NewDetector(r.cfg.Wake, wake.NewScorer(r.cfg.Wake), clk, r.logger)

		loop := newCaptureLoop(source, detector, pipe, func(wake.Event, bool) {
			counters.add(ctx, counters.wakes, "")
		}, r.logger)
		loop.run(ctx, &r.wg)
	}

	conn := busClient.Conn()
	textSub, err := conn.Subscribe(protocol.SubjectInputText, func(msg *nats.Msg) {
		var input protocol.TextInput
		if err := json.Unmarshal(msg.Data, &input); err != nil {
			r.logger.Warn("invalid text input", slog.String("error", err.Error()))
			return
		}
		pipe.SubmitText(input.Text)
	})
	if err != nil {
		return fmt.Errorf("subscribe text input: %w", err)
	}
	defer textSub.Drain()

	cancelSub, err := conn.Subscribe(protocol.SubjectInputCancel, func(*nats.Msg) {
		pipe.CancelActive()
	})
	if err != nil {
		return fmt.Errorf("subscribe cancel input: %w", err)
	}
	defer cancelSub.Drain()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.bridgeEvents(ctx, pipe, conn, store, counters)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)

	var metricsServer *http.Server
	if tel.metrics != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", tel.metrics)
		metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("stt_mode", r.cfg.STT.Mode),
		slog.String("llm_mode", r.cfg.LLM.Mode),
		slog.Bool("wake_enabled", r.cfg.Wake.Enabled))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	cancel()
	r.wg.Wait()

	if r.telemetryClose != nil {
		if err := r.telemetryClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// bridgeEvents fans the pipeline's feed out to the bus and the session
// timeline.
func (r *Runtime) bridgeEvents(ctx context.Context, pipe *pipeline.Pipeline, conn *nats.Conn, store *eventstore.Store, counters *sessionCounters) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-pipe.Events():
			payload, err := json.Marshal(ev)
			if err != nil {
				r.logger.Warn("failed to encode session event", slog.String("error", err.Error()))
				continue
			}
			if err := conn.Publish(protocol.SubjectSessionEvents, payload); err != nil {
				r.logger.Warn("failed to publish session event", slog.String("error", err.Error()))
			}

			switch ev.Kind {
			case protocol.EventSessionStarted:
				counters.add(ctx, counters.started, ev.Source)
				if err := store.AppendSession(ctx, ev.SessionID, ev.Source); err != nil {
					r.logger.Warn("failed to persist session", slog.String("error", err.Error()))
				}
			case protocol.EventSessionCompleted:
				counters.add(ctx, counters.completed, ev.Source)
			case protocol.EventSessionCancelled:
				counters.add(ctx, counters.cancelled, ev.Source)
			}

			if err := store.AppendEvent(ctx, eventstore.Event{
				SessionID: ev.SessionID,
				Kind:      string(ev.Kind),
				Source:    ev.Source,
				Payload:   payload,
				CreatedAt: ev.Timestamp,
			}); err != nil {
				r.logger.Warn("failed to persist session event", slog.String("error", err.Error()))
			}
		}
	}
}

type sessionCounters struct {
	started   metric.Int64Counter
	completed metric.Int64Counter
	cancelled metric.Int64Counter
	wakes     metric.Int64Counter
}

func newSessionCounters() (*sessionCounters, error) {
	meter := otel.Meter("github.com/pocketlabs/pocket-core/runtime")
	started, err := meter.Int64Counter("pocket.sessions.started", metric.WithDescription("Sessions started by source"))
	if err != nil {
		return &sessionCounters{}, err
	}
	completed, err := meter.Int64Counter("pocket.sessions.completed", metric.WithDescription("Sessions completed by source"))
	if err != nil {
		return &sessionCounters{}, err
	}
	cancelled, err := meter.Int64Counter("pocket.sessions.cancelled", metric.WithDescription("Sessions cancelled or preempted by source"))
	if err != nil {
		return &sessionCounters{}, err
	}
	wakes, err := meter.Int64Counter("pocket.wake.events", metric.WithDescription("Wake cues detected"))
	if err != nil {
		return &sessionCounters{}, err
	}
	return &sessionCounters{started: started, completed: completed, cancelled: cancelled, wakes: wakes}, nil
}

func (c *sessionCounters) add(ctx context.Context, counter metric.Int64Counter, source string) {
	if c == nil || counter == nil {
		return
	}
	if source == "" {
		counter.Add(ctx, 1)
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
