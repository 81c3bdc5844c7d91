package filter

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avaccess/internal/observability"
)

// filterTracer is the OTEL tracer used for filter evaluation.
var filterTracer = otel.Tracer("avaccess/filter")

// Decision is the outcome of evaluating a request.
type Decision struct {
	// Redirect indicates the request is restricted and must be
	// redirected instead of proceeding.
	Redirect bool

	// Location is the redirect target. Only set when Redirect is true.
	Location string

	// Pattern is the pattern that restricted the request, when any.
	Pattern string

	// Cached indicates the decision came from the decision cache.
	Cached bool
}

// Filter is the access filter façade. It owns the rule table and the
// default-route table and evaluates requests against them.
//
// Mutators serialize on an internal mutex and publish configuration as an
// immutable snapshot; Evaluate reads one snapshot without locking, so
// configuration changes may interleave with concurrent evaluation.
type Filter struct {
	hostPrefix string
	useFullURL bool

	logger  observability.Logger
	metrics *Metrics
	cache   DecisionCache

	mu   sync.Mutex
	snap atomic.Pointer[snapshot]

	regexMu sync.RWMutex
	regexes map[string]*regexp.Regexp
}

// Option is a functional option for the filter.
type Option func(*Filter)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(f *Filter) {
		f.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(f *Filter) {
		f.metrics = metrics
	}
}

// WithHostPrefix sets a host prefix prepended to every redirect target.
func WithHostPrefix(prefix string) Option {
	return func(f *Filter) {
		f.hostPrefix = prefix
	}
}

// WithFullURLs makes the HTTP middleware evaluate the full request URL
// instead of the path.
func WithFullURLs() Option {
	return func(f *Filter) {
		f.useFullURL = true
	}
}

// WithDecisionCache sets the decision cache.
func WithDecisionCache(cache DecisionCache) Option {
	return func(f *Filter) {
		f.cache = cache
	}
}

// New creates a new access filter in the unconfigured state.
func New(opts ...Option) *Filter {
	f := &Filter{
		logger:  observability.NopLogger(),
		regexes: make(map[string]*regexp.Regexp),
	}
	f.snap.Store(emptySnapshot())

	for _, opt := range opts {
		opt(f)
	}

	if f.metrics == nil {
		f.metrics = NewMetrics("avaccess")
	}
	if f.cache == nil {
		f.cache = NewNoopDecisionCache()
	}

	return f
}

// Allow registers or overwrites the allow-list for a pattern: only the
// given roles may access matching paths. Fails with
// ErrConflictingDisposition when the pattern already carries a deny-list,
// leaving the table unchanged.
func (f *Filter) Allow(pattern string, roles ...string) error {
	return f.setRule(pattern, DispositionAllow, roles)
}

// Deny registers or overwrites the deny-list for a pattern: the given
// roles are forbidden on matching paths. Fails with
// ErrConflictingDisposition when the pattern already carries an
// allow-list, leaving the table unchanged.
func (f *Filter) Deny(pattern string, roles ...string) error {
	return f.setRule(pattern, DispositionDeny, roles)
}

// setRule validates and publishes a rule registration.
func (f *Filter) setRule(pattern string, disposition Disposition, roles []string) error {
	if pattern == "" {
		return ErrEmptyPattern
	}
	if len(roles) == 0 {
		return ErrNoRoles
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	next := f.snap.Load().clone()
	if !next.setRule(pattern, disposition, normalizeRoles(roles)) {
		return fmt.Errorf("%w: %q", ErrConflictingDisposition, pattern)
	}
	f.publish(next)

	f.logger.Debug("rule registered",
		observability.String("pattern", pattern),
		observability.String("disposition", string(disposition)),
		observability.Strings("roles", roles),
	)
	return nil
}

// Settings is a complete filter configuration for Configure.
type Settings struct {
	// Default is the general fallback destination.
	Default string

	// RoleDefaults holds per-role fallback overrides.
	RoleDefaults map[string]string

	// Rules is the rule table in evaluation order. Each rule carries
	// exactly one of Allow and Deny.
	Rules []Rule
}

// Configure replaces the whole configuration in a single snapshot swap.
// Concurrent evaluations see either the previous configuration or the
// new one in full, never a partially loaded table. On error nothing is
// published and the previous configuration stays in effect.
func (f *Filter) Configure(s Settings) error {
	next := emptySnapshot()
	next.defaultURI = s.Default
	for role, uri := range s.RoleDefaults {
		next.roleDefaults[role] = uri
	}

	for _, rule := range s.Rules {
		if rule.Pattern == "" {
			return ErrEmptyPattern
		}
		if rule.Allow != nil && rule.Deny != nil {
			return fmt.Errorf("%w: %q", ErrConflictingDisposition, rule.Pattern)
		}
		disposition := rule.Disposition()
		roles := rule.Allow
		if disposition == DispositionDeny {
			roles = rule.Deny
		}
		if len(roles) == 0 {
			return fmt.Errorf("%w: %q", ErrNoRoles, rule.Pattern)
		}
		if !next.setRule(rule.Pattern, disposition, normalizeRoles(roles)) {
			return fmt.Errorf("%w: %q", ErrConflictingDisposition, rule.Pattern)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.publish(next)

	f.logger.Info("filter configured",
		observability.Int("rules", len(next.rules)),
		observability.Int("role_defaults", len(next.roleDefaults)),
	)
	return nil
}

// Rules returns the rule table in registration order. Role lists are
// copied, so mutating the result never reaches the published snapshot.
func (f *Filter) Rules() []Rule {
	snap := f.snap.Load()
	rules := make([]Rule, len(snap.rules))
	for i, rule := range snap.rules {
		rules[i] = Rule{Pattern: rule.Pattern}
		if rule.Allow != nil {
			rules[i].Allow = append([]string(nil), rule.Allow...)
		}
		if rule.Deny != nil {
			rules[i].Deny = append([]string(nil), rule.Deny...)
		}
	}
	return rules
}

// SetDefault sets the general fallback destination. The filter can only
// evaluate once this has been called.
func (f *Filter) SetDefault(uri string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := f.snap.Load().clone()
	next.defaultURI = uri
	f.publish(next)
}

// SetDefaultFor sets a per-role fallback destination overriding the
// general default.
func (f *Filter) SetDefaultFor(role, uri string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := f.snap.Load().clone()
	next.roleDefaults[role] = uri
	f.publish(next)
}

// Default returns the per-role fallback when one is set for a non-empty
// role, else the general default.
func (f *Filter) Default(role string) string {
	return f.snap.Load().defaultFor(role)
}

// RedirectTarget resolves the effective fallback destination for a role,
// host-qualified when a host prefix is configured. No URL validation or
// encoding is performed.
func (f *Filter) RedirectTarget(role string) string {
	target := f.Default(role)
	if f.hostPrefix != "" {
		return f.hostPrefix + target
	}
	return target
}

// UsesFullURLs reports whether the middleware should evaluate full
// request URLs instead of paths.
func (f *Filter) UsesFullURLs() bool {
	return f.useFullURL
}

// Reset clears the rule table and the default-route table, returning the
// filter to the unconfigured state.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.publish(emptySnapshot())

	f.logger.Info("filter reset")
}

// publish swaps in a new snapshot and refreshes gauges. Caller must hold
// the mutator lock.
func (f *Filter) publish(next *snapshot) {
	next.digest = next.fingerprint()
	f.snap.Store(next)
	allow, deny := next.counts()
	f.metrics.SetRuleCount(string(DispositionAllow), allow)
	f.metrics.SetRuleCount(string(DispositionDeny), deny)
}

// Evaluate decides whether the role may access the path. It returns a
// proceed decision, a redirect decision carrying the resolved fallback
// destination, or ErrSetupIncomplete when the role is empty or no general
// default route has been configured. The precondition is checked on every
// call.
func (f *Filter) Evaluate(ctx context.Context, role, path string) (*Decision, error) {
	start := time.Now()

	ctx, span := filterTracer.Start(ctx, "filter.evaluate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("filter.role", role),
			attribute.String("filter.path", path),
		),
	)
	defer span.End()

	snap := f.snap.Load()

	if role == "" {
		span.SetAttributes(attribute.String("filter.result", "error"))
		f.metrics.RecordEvaluation(resultError, time.Since(start))
		return nil, fmt.Errorf("%w: role is required", ErrSetupIncomplete)
	}
	if !snap.configured() {
		span.SetAttributes(attribute.String("filter.result", "error"))
		f.metrics.RecordEvaluation(resultError, time.Since(start))
		return nil, fmt.Errorf("%w: no default route configured", ErrSetupIncomplete)
	}

	cacheKey := decisionKey(role, path, snap.digest)
	if cached, ok := f.cache.Get(ctx, cacheKey); ok {
		f.metrics.RecordCacheHit()
		span.SetAttributes(
			attribute.Bool("filter.cached", true),
			attribute.Bool("filter.redirect", cached.Redirect),
		)
		return &Decision{
			Redirect: cached.Redirect,
			Location: cached.Location,
			Pattern:  cached.Pattern,
			Cached:   true,
		}, nil
	}
	f.metrics.RecordCacheMiss()

	restricted, pattern, err := f.isRestricted(snap, path, role)
	if err != nil {
		span.SetAttributes(attribute.String("filter.result", "error"))
		f.metrics.RecordEvaluation(resultError, time.Since(start))
		return nil, err
	}

	decision := &Decision{Redirect: restricted, Pattern: pattern}
	result := resultProceed
	if restricted {
		decision.Location = f.RedirectTarget(role)
		result = resultRedirect
		f.metrics.RecordRedirect(role)
	}

	f.cache.Set(ctx, cacheKey, &CachedDecision{
		Redirect: decision.Redirect,
		Location: decision.Location,
		Pattern:  decision.Pattern,
	})

	f.metrics.RecordEvaluation(result, time.Since(start))

	f.logger.Debug("access decision",
		observability.String("role", role),
		observability.String("path", path),
		observability.Bool("redirect", decision.Redirect),
		observability.String("pattern", decision.Pattern),
	)

	span.SetAttributes(
		attribute.Bool("filter.cached", false),
		attribute.Bool("filter.redirect", decision.Redirect),
		attribute.String("filter.pattern", decision.Pattern),
	)

	return decision, nil
}
