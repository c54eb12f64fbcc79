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

// SearchHandler answers factual questions through a search endpoint and
// relays the top result.
type SearchHandler struct {
	endpoint string
	client   *http.Client
	log      *slog.Logger
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
	} `json:"results"`
}

func NewSearchHandler(cfg config.SearchConfig, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
		log:      logger.With(slog.String("component", "search-handler")),
	}
}

func (h *SearchHandler) Invoke(ctx context.Context, args map[string]string) (ActionResult, error) {
	if h.endpoint == "" {
		return ActionResult{}, fmt.Errorf("search: no endpoint configured")
	}
	queryText := args["query"]
	if queryText == "" {
		return ActionResult{}, fmt.Errorf("search: empty query")
	}

	query := url.Values{}
	query.Set("q", queryText)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return ActionResult{}, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return ActionResult{}, fmt.Errorf("search service unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return ActionResult{}, fmt.Errorf("search service returned status %s", resp.Status)
	}

	var data searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return ActionResult{}, fmt.Errorf("decode search response: %w", err)
	}
	if len(data.Results) == 0 {
		return ActionResult{Success: true, Summary: fmt.Sprintf("no results for %s", queryText)}, nil
	}
	top := data.Results[0]
	return ActionResult{Success: true, Summary: fmt.Sprintf("%s: %s", top.Title, top.Snippet)}, nil
}
