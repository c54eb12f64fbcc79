package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pocketlabs/pocket-core/internal/clock"
	"github.com/pocketlabs/pocket-core/internal/config"
)

// NewsHandler fetches headlines over HTTP. Responses are cached for the
// configured TTL so repeated asks within a few minutes don't hammer the
// feed.
type NewsHandler struct {
	endpoint string
	ttl      time.Duration
	maxItems int
	client   *http.Client
	clk      clock.Clock
	log      *slog.Logger

	mu        sync.Mutex
	cached    string
	fetchedAt time.Time
}

type newsResponse struct {
	Items []struct {
		Title string `json:"title"`
	} `json:"items"`
}

func NewNewsHandler(cfg config.NewsConfig, clk clock.Clock, logger *slog.Logger) *NewsHandler {
	ttl := time.Duration(cfg.CacheTTLMins) * time.Minute
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = 5
	}
	return &NewsHandler{
		endpoint: cfg.Endpoint,
		ttl:      ttl,
		maxItems: maxItems,
		client:   &http.Client{Timeout: 5 * time.Second},
		clk:      clk,
		log:      logger.With(slog.String("component", "news-handler")),
	}
}

func (h *NewsHandler) Invoke(ctx context.Context, _ map[string]string) (ActionResult, error) {
	if h.endpoint == "" {
		return ActionResult{}, fmt.Errorf("news: no endpoint configured")
	}

	h.mu.Lock()
	if h.cached != "" && h.clk.Now().Sub(h.fetchedAt) < h.ttl {
		summary := h.cached
		h.mu.Unlock()
		return ActionResult{Success: true, Summary: summary}, nil
	}
	h.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint, nil)
	if err != nil {
		return ActionResult{}, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return ActionResult{}, fmt.Errorf("news feed unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return ActionResult{}, fmt.Errorf("news feed returned status %s", resp.Status)
	}

	var data newsResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return ActionResult{}, fmt.Errorf("decode news response: %w", err)
	}
	if len(data.Items) == 0 {
		return ActionResult{Success: true, Summary: "no headlines available right now"}, nil
	}

	count := len(data.Items)
	if count > h.maxItems {
		count = h.maxItems
	}
	titles := make([]string, count)
	for i := 0; i < count; i++ {
		titles[i] = data.Items[i].Title
	}
	summary := "top headlines: " + strings.Join(titles, ". ")

	h.mu.Lock()
	h.cached = summary
	h.fetchedAt = h.clk.Now()
	h.mu.Unlock()

	return ActionResult{Success: true, Summary: summary}, nil
}
