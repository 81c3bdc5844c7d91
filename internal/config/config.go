package config

import (
	"errors"
	"fmt"
	"regexp"
)

// Configuration validation errors.
var (
	// ErrBothDispositions indicates a rule carrying both an allow-list
	// and a deny-list.
	ErrBothDispositions = errors.New("rule cannot carry both allow and deny roles")

	// ErrNoDisposition indicates a rule carrying neither role list.
	ErrNoDisposition = errors.New("rule must carry allow or deny roles")

	// ErrMissingDefault indicates that no general default route is
	// configured.
	ErrMissingDefault = errors.New("filter default route is required")
)

// Config is the root daemon configuration.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures OTLP trace export.
	Tracing TracingConfig `yaml:"tracing,omitempty"`

	// Filter configures the access filter.
	Filter FilterConfig `yaml:"filter"`

	// Cache configures the decision cache.
	Cache CacheConfig `yaml:"cache,omitempty"`

	// RateLimit configures request rate limiting.
	RateLimit RateLimitConfig `yaml:"rateLimit,omitempty"`

	// Routes defines named route templates for the route resolver.
	Routes []NamedRoute `yaml:"routes,omitempty"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address (host:port).
	Addr string `yaml:"addr"`

	// MetricsAddr is the listen address for the /metrics endpoint.
	MetricsAddr string `yaml:"metricsAddr,omitempty"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `yaml:"shutdownTimeout,omitempty"`

	// RoleHeader is the request header carrying the requester's role.
	RoleHeader string `yaml:"roleHeader,omitempty"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
	Output string `yaml:"output,omitempty"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint,omitempty"`
	SamplingRate float64 `yaml:"samplingRate,omitempty"`
}

// FilterConfig configures the access filter.
type FilterConfig struct {
	// Default is the general fallback destination, either a URI or the
	// name of a route from Routes. Mandatory.
	Default string `yaml:"default"`

	// RoleDefaults overrides the fallback destination per role.
	RoleDefaults map[string]string `yaml:"roleDefaults,omitempty"`

	// HostPrefix is prepended to every redirect target.
	HostPrefix string `yaml:"hostPrefix,omitempty"`

	// UseFullURL makes the middleware evaluate full request URLs
	// instead of paths.
	UseFullURL bool `yaml:"useFullUrl,omitempty"`

	// Rules is the ordered rule table.
	Rules []RuleConfig `yaml:"rules,omitempty"`
}

// RuleConfig is one entry of the rule table. Exactly one of Allow and
// Deny must be set.
type RuleConfig struct {
	// Pattern is a regular expression matched unanchored against the
	// request path.
	Pattern string `yaml:"pattern"`

	// Allow lists the only roles permitted on matching paths.
	Allow []string `yaml:"allow,omitempty"`

	// Deny lists the roles forbidden on matching paths.
	Deny []string `yaml:"deny,omitempty"`
}

// CacheConfig configures the decision cache.
type CacheConfig struct {
	// Enabled enables decision caching.
	Enabled bool `yaml:"enabled"`

	// Type is the cache backend: "memory" or "redis".
	Type string `yaml:"type,omitempty"`

	// TTL is the decision TTL.
	TTL Duration `yaml:"ttl,omitempty"`

	// MaxEntries bounds the memory cache.
	MaxEntries int `yaml:"maxEntries,omitempty"`

	// Redis configures the redis backend.
	Redis RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig configures the Redis cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// RateLimitConfig configures request rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerSecond int  `yaml:"requestsPerSecond,omitempty"`
	Burst             int  `yaml:"burst,omitempty"`
	PerClient         bool `yaml:"perClient,omitempty"`
}

// NamedRoute defines a named route template for the route resolver.
type NamedRoute struct {
	// Name is the symbolic route name.
	Name string `yaml:"name"`

	// Path is the route template, with ":param" segments.
	Path string `yaml:"path"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":8080",
			MetricsAddr: ":9091",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if err := c.Filter.Validate(); err != nil {
		return err
	}
	if c.Cache.Enabled && c.Cache.Type == "redis" && c.Cache.Redis.Addr == "" {
		return errors.New("cache.redis.addr is required for the redis cache")
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return errors.New("rateLimit.requestsPerSecond must be positive")
	}
	for i, route := range c.Routes {
		if route.Name == "" || route.Path == "" {
			return fmt.Errorf("routes[%d]: name and path are required", i)
		}
	}
	return nil
}

// Validate validates the filter configuration. Patterns are compiled
// eagerly here so malformed regular expressions fail at load time
// instead of on the first matching request.
func (c *FilterConfig) Validate() error {
	if c.Default == "" {
		return ErrMissingDefault
	}
	for i, rule := range c.Rules {
		if rule.Pattern == "" {
			return fmt.Errorf("filter.rules[%d]: pattern is required", i)
		}
		if len(rule.Allow) > 0 && len(rule.Deny) > 0 {
			return fmt.Errorf("filter.rules[%d] (%q): %w", i, rule.Pattern, ErrBothDispositions)
		}
		if len(rule.Allow) == 0 && len(rule.Deny) == 0 {
			return fmt.Errorf("filter.rules[%d] (%q): %w", i, rule.Pattern, ErrNoDisposition)
		}
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			return fmt.Errorf("filter.rules[%d]: invalid pattern %q: %w", i, rule.Pattern, err)
		}
	}
	return nil
}
