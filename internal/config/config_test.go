package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Wake.DebounceMS != 1500 {
		t.Fatalf("expected default debounce, got %d", cfg.Wake.DebounceMS)
	}
	if cfg.Pipeline.Apology == "" {
		t.Fatal("expected default apology text")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("POCKET_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("POCKET_WAKE_SENSITIVITY", "0.85")
	t.Setenv("POCKET_WAKE_DEBOUNCE_MS", "900")
	t.Setenv("POCKET_WAKE_HARD_TIMEOUT_MS", "4000")
	t.Setenv("POCKET_INTENT_THRESHOLD", "0.4")
	t.Setenv("POCKET_INTENT_BUDGET_MS", "500")
	t.Setenv("POCKET_PIPELINE_SILENCE_TIMEOUT_MS", "1200")
	t.Setenv("POCKET_PIPELINE_MAX_UTTERANCE_MS", "9000")
	t.Setenv("POCKET_LLM_MODEL", "llama3.2:latest")
	t.Setenv("POCKET_TTS_VOICE", "en_GB-northern_english_male-medium")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Wake.Sensitivity != 0.85 {
		t.Fatalf("expected sensitivity override, got %v", cfg.Wake.Sensitivity)
	}
	if cfg.Wake.DebounceMS != 900 {
		t.Fatalf("expected debounce override, got %d", cfg.Wake.DebounceMS)
	}
	if cfg.Intent.Threshold != 0.4 {
		t.Fatalf("expected threshold override, got %v", cfg.Intent.Threshold)
	}
	if cfg.Intent.BudgetMS != 500 {
		t.Fatalf("expected budget override, got %d", cfg.Intent.BudgetMS)
	}
	if cfg.Pipeline.SilenceTimeoutMS != 1200 {
		t.Fatalf("expected silence timeout override, got %d", cfg.Pipeline.SilenceTimeoutMS)
	}
	if cfg.LLM.Model != "llama3.2:latest" {
		t.Fatalf("expected model override, got %s", cfg.LLM.Model)
	}
	if cfg.TTS.Voice != "en_GB-northern_english_male-medium" {
		t.Fatalf("expected voice override, got %s", cfg.TTS.Voice)
	}
}

func TestValidateRejectsBadUtteranceBounds(t *testing.T) {
	t.Setenv("POCKET_PIPELINE_SILENCE_TIMEOUT_MS", "5000")
	t.Setenv("POCKET_PIPELINE_MAX_UTTERANCE_MS", "4000")

	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error when max utterance <= silence timeout")
	}
}
