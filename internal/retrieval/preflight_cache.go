// internal/retrieval/preflight_cache.go
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const preflightTTL = 60 * time.Second

// PreflightResult is the cached outcome of a local-LLM reachability check,
// keyed "provider:base_url".
type PreflightResult struct {
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

// PreflightCache is the process-wide 60s-TTL preflight cache described in
// spec.md §4.2/§5. Backed by Redis (already wired by the host app for
// sessions) instead of an in-process map so multiple server instances share
// one cache.
type PreflightCache struct {
	rdb *redis.Client
}

func NewPreflightCache(rdb *redis.Client) *PreflightCache {
	return &PreflightCache{rdb: rdb}
}

func preflightKey(provider, baseURL string) string {
	return fmt.Sprintf("preflight:%s:%s", provider, baseURL)
}

// Get returns a cached result and true if present and still within 60s.
func (c *PreflightCache) Get(ctx context.Context, provider, baseURL string) (PreflightResult, bool) {
	if c.rdb == nil {
		return PreflightResult{}, false
	}
	raw, err := c.rdb.Get(ctx, preflightKey(provider, baseURL)).Bytes()
	if err != nil {
		return PreflightResult{}, false
	}
	var result PreflightResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return PreflightResult{}, false
	}
	return result, true
}

// Set stores a freshly-computed preflight result for 60 seconds.
func (c *PreflightCache) Set(ctx context.Context, provider, baseURL string, result PreflightResult) {
	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, preflightKey(provider, baseURL), raw, preflightTTL).Err()
}
