package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/agentcore/platform/internal/tools"
)

type cacheEntry struct {
	body      string
	expiresAt time.Time
}

// WebFetchTool fetches a URL's body over HTTP, rate-limited and with a
// short-lived per-URL cache so a turn that calls it repeatedly for the same
// page doesn't refetch within the cache window.
type WebFetchTool struct {
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	CacheTTL   time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

var _ tools.Tool = (*WebFetchTool)(nil)

func (t *WebFetchTool) Definition() tools.Definition {
	return tools.Definition{
		Name:        "web_fetch",
		Description: "Fetch the text content of a URL.",
		ParametersSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"url": {"type": "string"}},
			"required": ["url"]
		}`),
		Permission: tools.PermissionStandard,
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("web_fetch: decode args: %w", err)
	}

	if body, ok := t.cached(p.URL); ok {
		return body, nil
	}

	if t.Limiter != nil {
		if err := t.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("web_fetch: rate limit wait: %w", err)
		}
	}

	httpClient := t.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("web_fetch: build request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web_fetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("web_fetch: read body: %w", err)
	}
	t.store(p.URL, string(body))
	return string(body), nil
}

func (t *WebFetchTool) cached(url string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.cache[url]
	if !ok || time.Now().After(e.expiresAt) {
		return "", false
	}
	return e.body, true
}

func (t *WebFetchTool) store(url, body string) {
	ttl := t.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cache == nil {
		t.cache = make(map[string]cacheEntry)
	}
	t.cache[url] = cacheEntry{body: body, expiresAt: time.Now().Add(ttl)}
}
