package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pocketlabs/pocket-core/internal/clock"
	"github.com/pocketlabs/pocket-core/internal/config"
	"github.com/pocketlabs/pocket-core/internal/intent"
	"github.com/pocketlabs/pocket-core/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newExecutor(t *testing.T, budgetMS int) (*Executor, *Registry) {
	t.Helper()
	registry := NewRegistry(newLogger())
	exec := New(registry, config.HandlersConfig{BudgetMS: budgetMS}, newLogger())
	return exec, registry
}

func TestChatAndUnknownPassThroughVerbatim(t *testing.T) {
	exec, _ := newExecutor(t, 1000)
	for _, tag := range []intent.Tag{intent.TagChat, intent.TagUnknown} {
		result := exec.Execute(context.Background(), intent.Intent{Tag: tag}, "how tall is the eiffel tower?")
		if !result.Passthrough {
			t.Fatalf("%s must pass through", tag)
		}
		if result.Summary != "how tall is the eiffel tower?" {
			t.Fatalf("%s must carry the user text verbatim, got %q", tag, result.Summary)
		}
	}
}

func TestMissingHandlerFailsGracefully(t *testing.T) {
	exec, _ := newExecutor(t, 1000)
	result := exec.Execute(context.Background(), intent.Intent{Tag: intent.TagWeather}, "weather?")
	if result.Success {
		t.Fatal("missing handler must not succeed")
	}
	if result.Passthrough {
		t.Fatal("missing handler is not a passthrough")
	}
}

func TestBudgetEnforcedWithoutRetry(t *testing.T) {
	exec, registry := newExecutor(t, 50)
	var calls int32
	registry.Register(intent.TagLights, HandlerFunc(func(ctx context.Context, _ map[string]string) (ActionResult, error) {
		atomic.AddInt32(&calls, 1)
		<-ctx.Done()
		return ActionResult{}, ctx.Err()
	}))

	start := time.Now()
	result := exec.Execute(context.Background(), intent.Intent{Tag: intent.TagLights}, "lights on")
	if result.Success {
		t.Fatal("budget-exceeded call must fail")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("execute took %v, must return near the 50ms budget", elapsed)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("handler must be invoked exactly once, got %d", got)
	}
}

func TestLightsHandlerLocalMode(t *testing.T) {
	h := NewLightsHandler(config.LightsConfig{}, newLogger())
	result, err := h.Invoke(context.Background(), map[string]string{"target": "office", "state": "on"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !result.Success || !strings.Contains(result.Summary, "office") {
		t.Fatalf("unexpected result %+v", result)
	}
	if h.State("office") != "on" {
		t.Fatalf("state not remembered: %q", h.State("office"))
	}
}

func TestLightsHandlerBridge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lights" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var cmd lightsCommand
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			t.Errorf("decode command: %v", err)
		}
		if cmd.Target != "kitchen" || cmd.State != "off" {
			t.Errorf("unexpected command %+v", cmd)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewLightsHandler(config.LightsConfig{BridgeURL: srv.URL}, newLogger())
	result, err := h.Invoke(context.Background(), map[string]string{"target": "kitchen", "state": "off"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !result.Success {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestLightsHandlerBridgeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	h := NewLightsHandler(config.LightsConfig{BridgeURL: srv.URL}, newLogger())
	if _, err := h.Invoke(context.Background(), map[string]string{"state": "on"}); err == nil {
		t.Fatal("bridge failure must surface as an error")
	}
}

func TestTimerHandlerFiresOnce(t *testing.T) {
	clk := clock.NewFake()
	fired := make(chan string, 1)
	h := NewTimerHandler(context.Background(), clk, func(f protocol.TimerFired) {
		fired <- f.Label
	}, newLogger())
	t.Cleanup(h.Close)

	result, err := h.Invoke(context.Background(), map[string]string{"duration_s": "300", "label": "check the oven"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !strings.Contains(result.Summary, "5 minutes") {
		t.Fatalf("unexpected summary %q", result.Summary)
	}
	if h.Active() != 1 {
		t.Fatalf("expected 1 active timer, got %d", h.Active())
	}

	clk.Advance(5 * time.Minute)
	select {
	case label := <-fired:
		if label != "check the oven" {
			t.Fatalf("unexpected label %q", label)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
}

func TestTimerHandlerRejectsBadDuration(t *testing.T) {
	h := NewTimerHandler(context.Background(), clock.NewFake(), nil, newLogger())
	t.Cleanup(h.Close)
	if _, err := h.Invoke(context.Background(), map[string]string{}); err == nil {
		t.Fatal("missing duration must error")
	}
	if _, err := h.Invoke(context.Background(), map[string]string{"duration_s": "-5"}); err == nil {
		t.Fatal("negative duration must error")
	}
}

func TestWeatherHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("location") != "oslo" {
			t.Errorf("location not forwarded: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"temperature": 12, "condition": "cloudy", "location": "Oslo"}`))
	}))
	defer srv.Close()

	h := NewWeatherHandler(config.WeatherConfig{Endpoint: srv.URL, Units: "metric"}, newLogger())
	result, err := h.Invoke(context.Background(), map[string]string{"location": "oslo"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	for _, want := range []string{"12", "cloudy", "Oslo"} {
		if !strings.Contains(result.Summary, want) {
			t.Fatalf("summary %q missing %q", result.Summary, want)
		}
	}
}

func TestNewsHandlerCaches(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"items":[{"title":"headline one"},{"title":"headline two"}]}`))
	}))
	defer srv.Close()

	clk := clock.NewFake()
	h := NewNewsHandler(config.NewsConfig{Endpoint: srv.URL, CacheTTLMins: 15, MaxItems: 5}, clk, newLogger())

	for i := 0; i < 3; i++ {
		result, err := h.Invoke(context.Background(), nil)
		if err != nil {
			t.Fatalf("invoke: %v", err)
		}
		if !strings.Contains(result.Summary, "headline one") {
			t.Fatalf("unexpected summary %q", result.Summary)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected one upstream fetch within TTL, got %d", got)
	}

	clk.Advance(16 * time.Minute)
	if _, err := h.Invoke(context.Background(), nil); err != nil {
		t.Fatalf("invoke after TTL: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Fatalf("expected refetch after TTL, got %d fetches", got)
	}
}

func TestSearchHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "" {
			t.Error("query not forwarded")
		}
		w.Write([]byte(`{"results":[{"title":"Mount Everest","snippet":"8849 meters tall"}]}`))
	}))
	defer srv.Close()

	h := NewSearchHandler(config.SearchConfig{Endpoint: srv.URL}, newLogger())
	result, err := h.Invoke(context.Background(), map[string]string{"query": "tallest mountain"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !strings.Contains(result.Summary, "8849") {
		t.Fatalf("unexpected summary %q", result.Summary)
	}
}

type fakeHandlerErr struct{}

func (fakeHandlerErr) Invoke(context.Context, map[string]string) (ActionResult, error) {
	return ActionResult{}, errors.New("device offline")
}

func TestHandlerErrorBecomesFailureResult(t *testing.T) {
	exec, registry := newExecutor(t, 1000)
	registry.Register(intent.TagLights, fakeHandlerErr{})

	result := exec.Execute(context.Background(), intent.Intent{Tag: intent.TagLights}, "lights on")
	if result.Success {
		t.Fatal("handler error must yield a failure result")
	}
	if !strings.Contains(result.Summary, "device offline") {
		t.Fatalf("failure summary must carry the cause, got %q", result.Summary)
	}
}
