package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pocketlabs/pocket-core/internal/config"
)

// LightsHandler drives lights through an HTTP bridge. Without a bridge URL
// it keeps state in memory, which is enough for development and demos.
type LightsHandler struct {
	bridgeURL string
	client    *http.Client
	log       *slog.Logger

	mu    sync.Mutex
	local map[string]string // target -> state, bridge-less mode only
}

type lightsCommand struct {
	Target     string `json:"target"`
	State      string `json:"state"`
	Brightness string `json:"brightness,omitempty"`
}

func NewLightsHandler(cfg config.LightsConfig, logger *slog.Logger) *LightsHandler {
	return &LightsHandler{
		bridgeURL: cfg.BridgeURL,
		client:    &http.Client{Timeout: 5 * time.Second},
		log:       logger.With(slog.String("component", "lights-handler")),
		local:     make(map[string]string),
	}
}

func (h *LightsHandler) Invoke(ctx context.Context, args map[string]string) (ActionResult, error) {
	cmd := lightsCommand{
		Target:     args["target"],
		State:      args["state"],
		Brightness: args["brightness"],
	}
	if cmd.Target == "" {
		cmd.Target = "all"
	}
	if cmd.State == "" {
		return ActionResult{}, fmt.Errorf("lights: no state requested")
	}

	if h.bridgeURL == "" {
		h.mu.Lock()
		h.local[cmd.Target] = cmd.State
		h.mu.Unlock()
		return ActionResult{Success: true, Summary: lightsSummary(cmd)}, nil
	}

	body, err := json.Marshal(cmd)
	if err != nil {
		return ActionResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.bridgeURL+"/lights", bytes.NewReader(body))
	if err != nil {
		return ActionResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return ActionResult{}, fmt.Errorf("lights bridge unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return ActionResult{}, fmt.Errorf("lights bridge returned status %s", resp.Status)
	}
	return ActionResult{Success: true, Summary: lightsSummary(cmd)}, nil
}

func lightsSummary(cmd lightsCommand) string {
	summary := fmt.Sprintf("%s lights turned %s", cmd.Target, cmd.State)
	if cmd.Brightness != "" {
		summary += fmt.Sprintf(" at %s percent", cmd.Brightness)
	}
	return summary
}

// State reports the remembered state for a target in bridge-less mode.
func (h *LightsHandler) State(target string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.local[target]
}
