package filter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaccess/internal/cache"
	"github.com/vyrodovalexey/avaccess/internal/observability"
)

func newMemoryDecisionCache(t *testing.T) DecisionCache {
	t.Helper()

	backing := cache.NewMemory(cache.MemoryConfig{MaxEntries: 100}, observability.NopLogger())
	dc := NewDecisionCache(backing, time.Minute)
	t.Cleanup(func() { _ = dc.Close() })
	return dc
}

func TestDecisionCache_SetGet(t *testing.T) {
	t.Parallel()

	dc := newMemoryDecisionCache(t)
	ctx := context.Background()

	key := decisionKey("guest", "/admin", "fp")
	dc.Set(ctx, key, &CachedDecision{Redirect: true, Location: "/login", Pattern: "^/admin"})

	cached, ok := dc.Get(ctx, key)
	require.True(t, ok)
	assert.True(t, cached.Redirect)
	assert.Equal(t, "/login", cached.Location)
	assert.Equal(t, "^/admin", cached.Pattern)
}

func TestDecisionCache_Miss(t *testing.T) {
	t.Parallel()

	dc := newMemoryDecisionCache(t)

	_, ok := dc.Get(context.Background(), decisionKey("guest", "/absent", "fp"))
	assert.False(t, ok)
}

func TestDecisionCache_Redis(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	backing, err := cache.NewRedis(context.Background(), cache.RedisConfig{
		Addr: mr.Addr(),
	}, observability.NopLogger())
	require.NoError(t, err)

	dc := NewDecisionCache(backing, time.Minute, WithDecisionCachePrefix("avaccess:"))
	t.Cleanup(func() { _ = dc.Close() })

	ctx := context.Background()
	key := decisionKey("guest", "/admin", "fp")
	dc.Set(ctx, key, &CachedDecision{Redirect: false})

	cached, ok := dc.Get(ctx, key)
	require.True(t, ok)
	assert.False(t, cached.Redirect)
}

func TestDecisionKey_FingerprintInvalidates(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t,
		decisionKey("guest", "/admin", "fp1"),
		decisionKey("guest", "/admin", "fp2"),
	)
	assert.Equal(t,
		decisionKey("guest", "/admin", "fp1"),
		decisionKey("guest", "/admin", "fp1"),
	)
}

func TestSnapshot_FingerprintTracksContent(t *testing.T) {
	t.Parallel()

	build := func(pattern string) *snapshot {
		s := emptySnapshot()
		s.defaultURI = "/login"
		s.roleDefaults["guest"] = "/welcome"
		s.setRule(pattern, DispositionDeny, []string{"guest"})
		return s
	}

	assert.Equal(t, build("^/admin").fingerprint(), build("^/admin").fingerprint())
	assert.NotEqual(t, build("^/admin").fingerprint(), build("^/reports").fingerprint())

	withOverride := build("^/admin")
	withOverride.roleDefaults["guest"] = "/elsewhere"
	assert.NotEqual(t, build("^/admin").fingerprint(), withOverride.fingerprint())
}

func TestFilter_EvaluateUsesDecisionCache(t *testing.T) {
	t.Parallel()

	dc := newMemoryDecisionCache(t)
	f := New(
		WithDecisionCache(dc),
		WithMetrics(NewMetricsWithRegisterer("avaccess", prometheus.NewRegistry())),
	)
	require.NoError(t, f.Deny("^/admin", "guest"))
	f.SetDefault("/login")

	ctx := context.Background()

	first, err := f.Evaluate(ctx, "guest", "/admin/panel")
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := f.Evaluate(ctx, "guest", "/admin/panel")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Redirect, second.Redirect)
	assert.Equal(t, first.Location, second.Location)
}

func TestFilter_MutationInvalidatesCachedDecisions(t *testing.T) {
	t.Parallel()

	dc := newMemoryDecisionCache(t)
	f := New(
		WithDecisionCache(dc),
		WithMetrics(NewMetricsWithRegisterer("avaccess", prometheus.NewRegistry())),
	)
	f.SetDefault("/login")

	ctx := context.Background()

	decision, err := f.Evaluate(ctx, "guest", "/admin/panel")
	require.NoError(t, err)
	assert.False(t, decision.Redirect)

	// Registering a rule changes the configuration fingerprint, so the
	// cached proceed decision no longer applies.
	require.NoError(t, f.Deny("^/admin", "guest"))

	decision, err = f.Evaluate(ctx, "guest", "/admin/panel")
	require.NoError(t, err)
	assert.False(t, decision.Cached)
	assert.True(t, decision.Redirect)
}

func TestFilter_SharedCacheIsolatesConfigurations(t *testing.T) {
	t.Parallel()

	// Two filters with different rules but the same number of mutations
	// share one backing cache. Each must only ever see decisions made
	// under its own configuration.
	backing := cache.NewMemory(cache.MemoryConfig{MaxEntries: 100}, observability.NopLogger())
	t.Cleanup(func() { _ = backing.Close() })

	restricting := New(
		WithDecisionCache(NewDecisionCache(backing, time.Minute)),
		WithMetrics(NewMetricsWithRegisterer("avaccess", prometheus.NewRegistry())),
	)
	restricting.SetDefault("/login")
	require.NoError(t, restricting.Deny("^/admin", "guest"))

	open := New(
		WithDecisionCache(NewDecisionCache(backing, time.Minute)),
		WithMetrics(NewMetricsWithRegisterer("avaccess", prometheus.NewRegistry())),
	)
	open.SetDefault("/login")
	require.NoError(t, open.Allow("^/other", "editor"))

	ctx := context.Background()

	decision, err := restricting.Evaluate(ctx, "guest", "/admin/panel")
	require.NoError(t, err)
	require.True(t, decision.Redirect)

	decision, err = open.Evaluate(ctx, "guest", "/admin/panel")
	require.NoError(t, err)
	assert.False(t, decision.Cached)
	assert.False(t, decision.Redirect)
}

func TestNoopDecisionCache(t *testing.T) {
	t.Parallel()

	dc := NewNoopDecisionCache()
	ctx := context.Background()

	dc.Set(ctx, "key", &CachedDecision{Redirect: true})
	_, ok := dc.Get(ctx, "key")
	assert.False(t, ok)
	assert.NoError(t, dc.Close())
}
