package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/pocketlabs/pocket-core/internal/config"
)

// WeatherHandler queries a weather service over HTTP.
type WeatherHandler struct {
	endpoint string
	units    string
	client   *http.Client
	log      *slog.Logger
}

type weatherResponse struct {
	Temperature float64 `json:"temperature"`
	Condition   string  `json:"condition"`
	Location    string  `json:"location,omitempty"`
}

func NewWeatherHandler(cfg config.WeatherConfig, logger *slog.Logger) *WeatherHandler {
	return &WeatherHandler{
		endpoint: cfg.Endpoint,
		units:    cfg.Units,
		client:   &http.Client{Timeout: 5 * time.Second},
		log:      logger.With(slog.String("component", "weather-handler")),
	}
}

func (h *WeatherHandler) Invoke(ctx context.Context, args map[string]string) (ActionResult, error) {
	if h.endpoint == "" {
		return ActionResult{}, fmt.Errorf("weather: no endpoint configured")
	}

	query := url.Values{}
	if loc := args["location"]; loc != "" {
		query.Set("location", loc)
	}
	if h.units != "" {
		query.Set("units", h.units)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return ActionResult{}, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return ActionResult{}, fmt.Errorf("weather service unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return ActionResult{}, fmt.Errorf("weather service returned status %s", resp.Status)
	}

	var data weatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return ActionResult{}, fmt.Errorf("decode weather response: %w", err)
	}

	unit := "celsius"
	if h.units == "imperial" {
		unit = "fahrenheit"
	}
	where := data.Location
	if where == "" {
		where = args["location"]
	}
	summary := fmt.Sprintf("%.0f degrees %s and %s", data.Temperature, unit, data.Condition)
	if where != "" {
		summary += " in " + where
	}
	return ActionResult{Success: true, Summary: summary}, nil
}
