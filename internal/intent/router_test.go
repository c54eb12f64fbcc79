package intent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pocketlabs/pocket-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type funcModel func(ctx context.Context, text string) (Intent, error)

func (f funcModel) Classify(ctx context.Context, text string) (Intent, error) { return f(ctx, text) }

func testIntentConfig() config.IntentConfig {
	return config.IntentConfig{Mode: "rule", Threshold: 0.5, BudgetMS: 100}
}

func TestRuleModelIsDeterministic(t *testing.T) {
	model := NewRuleModel()
	cases := []struct {
		text string
		tag  Tag
	}{
		{"turn on the office lights", TagLights},
		{"turn off the kitchen lamp", TagLights},
		{"what's the weather in berlin", TagWeather},
		{"set a timer for 5 minutes", TagTimer},
		{"what's on my calendar tomorrow", TagCalendar},
		{"add milk to my grocery list", TagTask},
		{"give me the news headlines", TagNews},
		{"search for the tallest mountain", TagSearch},
		{"hello there", TagChat},
		{"qwzx blorp", TagUnknown},
	}
	for _, tc := range cases {
		first, err := model.Classify(context.Background(), tc.text)
		if err != nil {
			t.Fatalf("classify %q: %v", tc.text, err)
		}
		if first.Tag != tc.tag {
			t.Fatalf("classify %q: got %s, want %s", tc.text, first.Tag, tc.tag)
		}
		second, _ := model.Classify(context.Background(), tc.text)
		if second.Tag != first.Tag || second.Confidence != first.Confidence {
			t.Fatalf("classify %q: not deterministic", tc.text)
		}
	}
}

func TestRuleModelExtractsLightArgs(t *testing.T) {
	model := NewRuleModel()
	result, err := model.Classify(context.Background(), "turn on the office lights")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.Args["target"] != "office" {
		t.Fatalf("target: got %q, want office", result.Args["target"])
	}
	if result.Args["state"] != "on" {
		t.Fatalf("state: got %q, want on", result.Args["state"])
	}
}

func TestRuleModelExtractsTimerDuration(t *testing.T) {
	model := NewRuleModel()
	result, err := model.Classify(context.Background(), "set a timer for 5 minutes")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.Args["duration_s"] != "300" {
		t.Fatalf("duration_s: got %q, want 300", result.Args["duration_s"])
	}
}

func TestRouteFallsBackToUnknownOnTimeout(t *testing.T) {
	model := funcModel(func(ctx context.Context, _ string) (Intent, error) {
		<-ctx.Done()
		return Intent{}, ctx.Err()
	})
	router := NewRouter(model, testIntentConfig(), newLogger())

	start := time.Now()
	result := router.Route(context.Background(), "turn on the lights")
	elapsed := time.Since(start)

	if result.Tag != TagUnknown {
		t.Fatalf("got %s, want Unknown", result.Tag)
	}
	if elapsed > 500*time.Millisecond {
		t.Fatalf("route took %v, must return near the 100ms budget", elapsed)
	}
}

func TestRouteFallsBackToUnknownOnError(t *testing.T) {
	model := funcModel(func(context.Context, string) (Intent, error) {
		return Intent{}, errors.New("model unavailable")
	})
	router := NewRouter(model, testIntentConfig(), newLogger())

	if result := router.Route(context.Background(), "anything"); result.Tag != TagUnknown {
		t.Fatalf("got %s, want Unknown", result.Tag)
	}
}

func TestRouteDowngradesLowConfidence(t *testing.T) {
	model := funcModel(func(context.Context, string) (Intent, error) {
		return Intent{Tag: TagLights, Confidence: 0.2}, nil
	})
	router := NewRouter(model, testIntentConfig(), newLogger())

	if result := router.Route(context.Background(), "mumble"); result.Tag != TagUnknown {
		t.Fatalf("got %s, want Unknown", result.Tag)
	}
}

func TestRouteKeepsConfidentIntent(t *testing.T) {
	model := funcModel(func(context.Context, string) (Intent, error) {
		return Intent{Tag: TagWeather, Args: map[string]string{"location": "oslo"}, Confidence: 0.9}, nil
	})
	router := NewRouter(model, testIntentConfig(), newLogger())

	result := router.Route(context.Background(), "weather in oslo")
	if result.Tag != TagWeather || result.Args["location"] != "oslo" {
		t.Fatalf("unexpected result %+v", result)
	}
}
