package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type CaptureConfig struct {
	SampleRate      int `yaml:"sample_rate"`
	Channels        int `yaml:"channels"`
	FrameDurationMS int `yaml:"frame_duration_ms"`
}

type WakeConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Mode          string  `yaml:"mode"` // energy, mock
	Sensitivity   float64 `yaml:"sensitivity"`
	WindowMS      int     `yaml:"window_ms"`
	DebounceMS    int     `yaml:"debounce_ms"`
	HardTimeoutMS int     `yaml:"hard_timeout_ms"`
}

type STTConfig struct {
	Mode           string `yaml:"mode"` // mock, exec
	Command        string `yaml:"command"`
	ModelPath      string `yaml:"model_path"`
	Language       string `yaml:"language"`
	PartialEveryMS int    `yaml:"partial_every_ms"`
}

type IntentConfig struct {
	Mode      string  `yaml:"mode"` // rule, exec
	Command   string  `yaml:"command"`
	Threshold float64 `yaml:"threshold"`
	BudgetMS  int     `yaml:"budget_ms"`
}

type LightsConfig struct {
	BridgeURL string `yaml:"bridge_url"`
}

type WeatherConfig struct {
	Endpoint string `yaml:"endpoint"`
	Units    string `yaml:"units"`
}

type NewsConfig struct {
	Endpoint     string `yaml:"endpoint"`
	CacheTTLMins int    `yaml:"cache_ttl_minutes"`
	MaxItems     int    `yaml:"max_items"`
}

type SearchConfig struct {
	Endpoint   string `yaml:"endpoint"`
	MaxResults int    `yaml:"max_results"`
}

type HandlersConfig struct {
	BudgetMS int           `yaml:"budget_ms"`
	Lights   LightsConfig  `yaml:"lights"`
	Weather  WeatherConfig `yaml:"weather"`
	News     NewsConfig    `yaml:"news"`
	Search   SearchConfig  `yaml:"search"`
}

type LLMConfig struct {
	Mode        string  `yaml:"mode"` // mock, ollama, exec
	Endpoint    string  `yaml:"endpoint"`
	Command     string  `yaml:"command"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	MaxHistory  int     `yaml:"max_history"`
}

type TTSConfig struct {
	Mode       string `yaml:"mode"` // mock, exec
	Command    string `yaml:"command"`
	Voice      string `yaml:"voice"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
}

type PipelineConfig struct {
	SilenceTimeoutMS int    `yaml:"silence_timeout_ms"`
	MaxUtteranceMS   int    `yaml:"max_utterance_ms"`
	ResponseIdleMS   int    `yaml:"response_idle_ms"`
	CancelBoundMS    int    `yaml:"cancel_bound_ms"`
	PhraseMaxChars   int    `yaml:"phrase_max_chars"`
	Apology          string `yaml:"apology"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Capture     CaptureConfig    `yaml:"capture"`
	Wake        WakeConfig       `yaml:"wake"`
	STT         STTConfig        `yaml:"stt"`
	Intent      IntentConfig     `yaml:"intent"`
	Handlers    HandlersConfig   `yaml:"handlers"`
	LLM         LLMConfig        `yaml:"llm"`
	TTS         TTSConfig        `yaml:"tts"`
	Pipeline    PipelineConfig   `yaml:"pipeline"`
}

func Default() Config {
	return Config{
		RuntimeName: "pocket-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/pocket-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Capture: CaptureConfig{
			SampleRate:      16000,
			Channels:        1,
			FrameDurationMS: 20,
		},
		Wake: WakeConfig{
			Enabled:       true,
			Mode:          "energy",
			Sensitivity:   0.6,
			WindowMS:      600,
			DebounceMS:    1500,
			HardTimeoutMS: 5000,
		},
		STT: STTConfig{
			Mode:           "mock",
			PartialEveryMS: 800,
		},
		Intent: IntentConfig{
			Mode:      "rule",
			Threshold: 0.5,
			BudgetMS:  1500,
		},
		Handlers: HandlersConfig{
			BudgetMS: 8000,
			Weather:  WeatherConfig{Units: "fahrenheit"},
			News:     NewsConfig{CacheTTLMins: 15, MaxItems: 5},
			Search:   SearchConfig{MaxResults: 5},
		},
		LLM: LLMConfig{
			Mode:        "mock",
			Endpoint:    "http://localhost:11434",
			Model:       "qwen3:4b",
			MaxTokens:   256,
			Temperature: 0.7,
			MaxHistory:  20,
		},
		TTS: TTSConfig{
			Mode:       "mock",
			SampleRate: 22050,
			Channels:   1,
		},
		Pipeline: PipelineConfig{
			SilenceTimeoutMS: 2000,
			MaxUtteranceMS:   15000,
			ResponseIdleMS:   20000,
			CancelBoundMS:    50,
			PhraseMaxChars:   240,
			Apology:          "Sorry, I couldn't handle that. Please try again.",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "POCKET_RUNTIME_NAME")
	overrideString(&cfg.Environment, "POCKET_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "POCKET_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "POCKET_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "POCKET_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "POCKET_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "POCKET_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "POCKET_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "POCKET_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "POCKET_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "POCKET_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "POCKET_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "POCKET_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "POCKET_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "POCKET_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "POCKET_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "POCKET_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "POCKET_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "POCKET_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "POCKET_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "POCKET_EVENT_STORE_VACUUM_ON_START")
	overrideInt(&cfg.Capture.SampleRate, "POCKET_CAPTURE_SAMPLE_RATE")
	overrideInt(&cfg.Capture.Channels, "POCKET_CAPTURE_CHANNELS")
	overrideInt(&cfg.Capture.FrameDurationMS, "POCKET_CAPTURE_FRAME_DURATION_MS")
	overrideBool(&cfg.Wake.Enabled, "POCKET_WAKE_ENABLED")
	overrideString(&cfg.Wake.Mode, "POCKET_WAKE_MODE")
	overrideFloat(&cfg.Wake.Sensitivity, "POCKET_WAKE_SENSITIVITY")
	overrideInt(&cfg.Wake.WindowMS, "POCKET_WAKE_WINDOW_MS")
	overrideInt(&cfg.Wake.DebounceMS, "POCKET_WAKE_DEBOUNCE_MS")
	overrideInt(&cfg.Wake.HardTimeoutMS, "POCKET_WAKE_HARD_TIMEOUT_MS")
	overrideString(&cfg.STT.Mode, "POCKET_STT_MODE")
	overrideString(&cfg.STT.Command, "POCKET_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "POCKET_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "POCKET_STT_LANGUAGE")
	overrideInt(&cfg.STT.PartialEveryMS, "POCKET_STT_PARTIAL_EVERY_MS")
	overrideString(&cfg.Intent.Mode, "POCKET_INTENT_MODE")
	overrideString(&cfg.Intent.Command, "POCKET_INTENT_COMMAND")
	overrideFloat(&cfg.Intent.Threshold, "POCKET_INTENT_THRESHOLD")
	overrideInt(&cfg.Intent.BudgetMS, "POCKET_INTENT_BUDGET_MS")
	overrideInt(&cfg.Handlers.BudgetMS, "POCKET_HANDLERS_BUDGET_MS")
	overrideString(&cfg.Handlers.Lights.BridgeURL, "POCKET_HANDLERS_LIGHTS_BRIDGE_URL")
	overrideString(&cfg.Handlers.Weather.Endpoint, "POCKET_HANDLERS_WEATHER_ENDPOINT")
	overrideString(&cfg.Handlers.Weather.Units, "POCKET_HANDLERS_WEATHER_UNITS")
	overrideString(&cfg.Handlers.News.Endpoint, "POCKET_HANDLERS_NEWS_ENDPOINT")
	overrideInt(&cfg.Handlers.News.CacheTTLMins, "POCKET_HANDLERS_NEWS_CACHE_TTL_MINUTES")
	overrideInt(&cfg.Handlers.News.MaxItems, "POCKET_HANDLERS_NEWS_MAX_ITEMS")
	overrideString(&cfg.Handlers.Search.Endpoint, "POCKET_HANDLERS_SEARCH_ENDPOINT")
	overrideInt(&cfg.Handlers.Search.MaxResults, "POCKET_HANDLERS_SEARCH_MAX_RESULTS")
	overrideString(&cfg.LLM.Mode, "POCKET_LLM_MODE")
	overrideString(&cfg.LLM.Endpoint, "POCKET_LLM_ENDPOINT")
	overrideString(&cfg.LLM.Command, "POCKET_LLM_COMMAND")
	overrideString(&cfg.LLM.Model, "POCKET_LLM_MODEL")
	overrideInt(&cfg.LLM.MaxTokens, "POCKET_LLM_MAX_TOKENS")
	overrideFloat(&cfg.LLM.Temperature, "POCKET_LLM_TEMPERATURE")
	overrideInt(&cfg.LLM.MaxHistory, "POCKET_LLM_MAX_HISTORY")
	overrideString(&cfg.TTS.Mode, "POCKET_TTS_MODE")
	overrideString(&cfg.TTS.Command, "POCKET_TTS_COMMAND")
	overrideString(&cfg.TTS.Voice, "POCKET_TTS_VOICE")
	overrideInt(&cfg.TTS.SampleRate, "POCKET_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "POCKET_TTS_CHANNELS")
	overrideInt(&cfg.Pipeline.SilenceTimeoutMS, "POCKET_PIPELINE_SILENCE_TIMEOUT_MS")
	overrideInt(&cfg.Pipeline.MaxUtteranceMS, "POCKET_PIPELINE_MAX_UTTERANCE_MS")
	overrideInt(&cfg.Pipeline.ResponseIdleMS, "POCKET_PIPELINE_RESPONSE_IDLE_MS")
	overrideInt(&cfg.Pipeline.CancelBoundMS, "POCKET_PIPELINE_CANCEL_BOUND_MS")
	overrideInt(&cfg.Pipeline.PhraseMaxChars, "POCKET_PIPELINE_PHRASE_MAX_CHARS")
	overrideString(&cfg.Pipeline.Apology, "POCKET_PIPELINE_APOLOGY")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Capture.SampleRate <= 0 {
		return errors.New("capture.sample_rate must be positive")
	}
	if cfg.Capture.Channels <= 0 {
		return errors.New("capture.channels must be positive")
	}
	if cfg.Capture.FrameDurationMS <= 0 {
		return errors.New("capture.frame_duration_ms must be positive")
	}
	if cfg.Wake.Enabled {
		switch cfg.Wake.Mode {
		case "energy", "mock":
		default:
			return errors.New("wake.mode must be one of energy|mock")
		}
		if cfg.Wake.Sensitivity < 0 || cfg.Wake.Sensitivity > 1 {
			return errors.New("wake.sensitivity must be within [0,1]")
		}
		if cfg.Wake.WindowMS <= 0 {
			return errors.New("wake.window_ms must be positive")
		}
		if cfg.Wake.DebounceMS <= 0 {
			return errors.New("wake.debounce_ms must be positive")
		}
		if cfg.Wake.HardTimeoutMS < cfg.Wake.DebounceMS {
			return errors.New("wake.hard_timeout_ms must be >= wake.debounce_ms")
		}
	}
	switch cfg.STT.Mode {
	case "mock", "exec":
	default:
		return errors.New("stt.mode must be one of mock|exec")
	}
	if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
		return errors.New("stt.command must be set when mode=exec")
	}
	switch cfg.Intent.Mode {
	case "rule", "exec":
	default:
		return errors.New("intent.mode must be one of rule|exec")
	}
	if cfg.Intent.Mode == "exec" && cfg.Intent.Command == "" {
		return errors.New("intent.command must be set when mode=exec")
	}
	if cfg.Intent.Threshold < 0 || cfg.Intent.Threshold > 1 {
		return errors.New("intent.threshold must be within [0,1]")
	}
	if cfg.Intent.BudgetMS <= 0 {
		return errors.New("intent.budget_ms must be positive")
	}
	if cfg.Handlers.BudgetMS <= 0 {
		return errors.New("handlers.budget_ms must be positive")
	}
	switch cfg.LLM.Mode {
	case "mock", "ollama", "exec":
	default:
		return errors.New("llm.mode must be one of mock|ollama|exec")
	}
	if cfg.LLM.Mode == "ollama" && cfg.LLM.Endpoint == "" {
		return errors.New("llm.endpoint must be set when mode=ollama")
	}
	if cfg.LLM.Mode == "exec" && cfg.LLM.Command == "" {
		return errors.New("llm.command must be set when mode=exec")
	}
	if cfg.LLM.MaxTokens < 0 {
		return errors.New("llm.max_tokens must be >= 0")
	}
	if cfg.LLM.MaxHistory < 2 {
		return errors.New("llm.max_history must be >= 2")
	}
	switch cfg.TTS.Mode {
	case "mock", "exec":
	default:
		return errors.New("tts.mode must be one of mock|exec")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.Channels <= 0 {
		return errors.New("tts.channels must be positive")
	}
	if cfg.Pipeline.SilenceTimeoutMS <= 0 {
		return errors.New("pipeline.silence_timeout_ms must be positive")
	}
	if cfg.Pipeline.MaxUtteranceMS <= cfg.Pipeline.SilenceTimeoutMS {
		return errors.New("pipeline.max_utterance_ms must be greater than silence timeout")
	}
	if cfg.Pipeline.ResponseIdleMS <= 0 {
		return errors.New("pipeline.response_idle_ms must be positive")
	}
	if cfg.Pipeline.CancelBoundMS <= 0 {
		return errors.New("pipeline.cancel_bound_ms must be positive")
	}
	if cfg.Pipeline.PhraseMaxChars <= 0 {
		return errors.New("pipeline.phrase_max_chars must be positive")
	}
	if cfg.Pipeline.Apology == "" {
		return errors.New("pipeline.apology must not be empty")
	}
	return nil
}
