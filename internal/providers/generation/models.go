package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"contentengine/internal/infra"
)

const (
	defaultModelsTTL     = 15 * time.Minute
	modelsRequestTimeout = 15 * time.Second
)

// FallbackModels is returned when the provider cannot be asked.
var FallbackModels = []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-3.5-turbo"}

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

type cachedModels struct {
	models  []string
	expires time.Time
}

// ModelDiscovery lists model ids from {api_base}/models, caching per base URL.
type ModelDiscovery struct {
	client *http.Client
	logger *infra.Logger
	ttl    time.Duration
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]cachedModels
}

func NewModelDiscovery(client *http.Client, ttl time.Duration, logger *infra.Logger) *ModelDiscovery {
	if client == nil {
		client = &http.Client{Timeout: modelsRequestTimeout}
	}
	if ttl <= 0 {
		ttl = defaultModelsTTL
	}
	return &ModelDiscovery{
		client: client,
		logger: infra.LoggerOrDiscard(logger),
		ttl:    ttl,
		now:    time.Now,
		cache:  map[string]cachedModels{},
	}
}

// Models returns sorted, de-duplicated model ids. Missing credentials or a
// failed request yield FallbackModels; failures are never cached.
func (d *ModelDiscovery) Models(ctx context.Context, apiBase, apiKey string) []string {
	apiBase = strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if cached, ok := d.cached(apiBase); ok {
		return cached
	}
	if apiBase == "" || strings.TrimSpace(apiKey) == "" {
		return append([]string(nil), FallbackModels...)
	}
	models, err := d.fetch(ctx, apiBase, apiKey)
	if err != nil || len(models) == 0 {
		d.logger.Warn().Err(err).Str("api_base", apiBase).Msg("generation: model discovery failed")
		return append([]string(nil), FallbackModels...)
	}
	d.mu.Lock()
	d.cache[apiBase] = cachedModels{models: models, expires: d.now().Add(d.ttl)}
	d.mu.Unlock()
	return append([]string(nil), models...)
}

// Refresh drops the cache entry for apiBase and asks again.
func (d *ModelDiscovery) Refresh(ctx context.Context, apiBase, apiKey string) []string {
	d.mu.Lock()
	delete(d.cache, strings.TrimRight(strings.TrimSpace(apiBase), "/"))
	d.mu.Unlock()
	return d.Models(ctx, apiBase, apiKey)
}

func (d *ModelDiscovery) cached(apiBase string) ([]string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.cache[apiBase]
	if !ok || d.now().After(entry.expires) {
		return nil, false
	}
	return append([]string(nil), entry.models...), true
}

func (d *ModelDiscovery) fetch(ctx context.Context, apiBase, apiKey string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(apiKey))
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("models status %d", resp.StatusCode)
	}
	var out modelsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode models: %w", err)
	}
	seen := map[string]struct{}{}
	var models []string
	for _, item := range out.Data {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		models = append(models, id)
	}
	sort.Strings(models)
	return models, nil
}
