// Model list caching.
//
// DESIGN: The upstream model list changes rarely, so it is cached with a TTL
// and refreshed on expiry. Read-mostly shared state; go-cache handles the
// expiry bookkeeping and locking.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
)

const modelsCacheKey = "models"

type modelsCache struct {
	cache *gocache.Cache
}

func newModelsCache(ttl time.Duration) *modelsCache {
	return &modelsCache{
		cache: gocache.New(ttl, ttl),
	}
}

// Models returns the upstream model list payload, served from cache while
// fresh. On a miss the list is fetched with the caller's bearer token and the
// raw JSON payload is cached as-is.
//
// The cached boolean is reported for metrics.
func (c *Client) Models(ctx context.Context, bearer string) (payload []byte, cached bool, err error) {
	if v, ok := c.models.cache.Get(modelsCacheKey); ok {
		return v.([]byte), true, nil
	}

	payload, err = c.fetchModels(ctx, bearer)
	if err != nil {
		return nil, false, err
	}

	c.models.cache.Set(modelsCacheKey, payload, gocache.DefaultExpiration)
	log.Debug().Int("bytes", len(payload)).Msg("models: cache refreshed")
	return payload, false, nil
}

func (c *Client) fetchModels(ctx context.Context, bearer string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.modelsPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch models: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch models: upstream status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
