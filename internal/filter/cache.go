package filter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/vyrodovalexey/avaccess/internal/cache"
	"github.com/vyrodovalexey/avaccess/internal/observability"
)

// DecisionCache caches access decisions.
type DecisionCache interface {
	// Get retrieves a cached decision.
	Get(ctx context.Context, key string) (*CachedDecision, bool)

	// Set stores a decision in the cache.
	Set(ctx context.Context, key string, decision *CachedDecision)

	// Close closes the cache.
	Close() error
}

// CachedDecision is the serialized form of an access decision.
type CachedDecision struct {
	// Redirect indicates the request was restricted.
	Redirect bool `json:"redirect"`

	// Location is the redirect target, when restricted.
	Location string `json:"location,omitempty"`

	// Pattern is the restricting pattern, when any.
	Pattern string `json:"pattern,omitempty"`
}

// decisionKey builds a cache key from the role, the path and the
// configuration fingerprint. Keying on the content fingerprint makes
// every stale entry unreachable after a configuration change, and keeps
// filter instances sharing one backing cache from serving each other's
// decisions unless their configurations are identical.
func decisionKey(role, path, fingerprint string) string {
	h := sha256.New()
	h.Write([]byte(role))
	h.Write([]byte{':'})
	h.Write([]byte(path))
	h.Write([]byte{':'})
	h.Write([]byte(fingerprint))
	return hex.EncodeToString(h.Sum(nil))
}

// cacheBackedDecisionCache stores decisions in a byte cache, memory or
// Redis backed.
type cacheBackedDecisionCache struct {
	cache  cache.Cache
	ttl    time.Duration
	prefix string
	logger observability.Logger
}

// DecisionCacheOption is a functional option for the decision cache.
type DecisionCacheOption func(*cacheBackedDecisionCache)

// WithDecisionCacheLogger sets the logger.
func WithDecisionCacheLogger(logger observability.Logger) DecisionCacheOption {
	return func(c *cacheBackedDecisionCache) {
		c.logger = logger
	}
}

// WithDecisionCachePrefix sets the key prefix.
func WithDecisionCachePrefix(prefix string) DecisionCacheOption {
	return func(c *cacheBackedDecisionCache) {
		c.prefix = prefix
	}
}

// NewDecisionCache creates a decision cache over a byte cache.
func NewDecisionCache(c cache.Cache, ttl time.Duration, opts ...DecisionCacheOption) DecisionCache {
	dc := &cacheBackedDecisionCache{
		cache:  c,
		ttl:    ttl,
		prefix: "decision:",
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(dc)
	}

	return dc
}

// Get retrieves a cached decision.
func (c *cacheBackedDecisionCache) Get(ctx context.Context, key string) (*CachedDecision, bool) {
	data, err := c.cache.Get(ctx, c.prefix+key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn("failed to read cached decision",
				observability.String("key", key),
				observability.Error(err),
			)
		}
		return nil, false
	}

	var decision CachedDecision
	if err := json.Unmarshal(data, &decision); err != nil {
		c.logger.Warn("failed to unmarshal cached decision",
			observability.String("key", key),
			observability.Error(err),
		)
		return nil, false
	}

	return &decision, true
}

// Set stores a decision in the cache.
func (c *cacheBackedDecisionCache) Set(ctx context.Context, key string, decision *CachedDecision) {
	data, err := json.Marshal(decision)
	if err != nil {
		c.logger.Warn("failed to marshal decision",
			observability.String("key", key),
			observability.Error(err),
		)
		return
	}

	if err := c.cache.Set(ctx, c.prefix+key, data, c.ttl); err != nil {
		c.logger.Warn("failed to cache decision",
			observability.String("key", key),
			observability.Error(err),
		)
	}
}

// Close closes the underlying cache.
func (c *cacheBackedDecisionCache) Close() error {
	return c.cache.Close()
}

// noopDecisionCache caches nothing.
type noopDecisionCache struct{}

// NewNoopDecisionCache creates a decision cache that caches nothing.
func NewNoopDecisionCache() DecisionCache {
	return &noopDecisionCache{}
}

// Get always misses.
func (c *noopDecisionCache) Get(ctx context.Context, key string) (*CachedDecision, bool) {
	return nil, false
}

// Set does nothing.
func (c *noopDecisionCache) Set(ctx context.Context, key string, decision *CachedDecision) {}

// Close does nothing.
func (c *noopDecisionCache) Close() error {
	return nil
}

// Ensure implementations satisfy the interface.
var (
	_ DecisionCache = (*cacheBackedDecisionCache)(nil)
	_ DecisionCache = (*noopDecisionCache)(nil)
)
