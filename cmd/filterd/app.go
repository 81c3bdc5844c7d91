package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vyrodovalexey/avaccess/internal/cache"
	"github.com/vyrodovalexey/avaccess/internal/config"
	"github.com/vyrodovalexey/avaccess/internal/filter"
	"github.com/vyrodovalexey/avaccess/internal/health"
	"github.com/vyrodovalexey/avaccess/internal/middleware"
	"github.com/vyrodovalexey/avaccess/internal/observability"
	"github.com/vyrodovalexey/avaccess/internal/routes"
)

const defaultShutdownTimeout = 30 * time.Second

// application holds all daemon components.
type application struct {
	logger        observability.Logger
	filter        *filter.Filter
	metrics       *filter.Metrics
	tracer        *observability.Tracer
	healthChecker *health.Checker
	limiter       *middleware.RateLimiter
	backingCache  cache.Cache
	server        *http.Server
	metricsServer *http.Server

	mu  sync.Mutex
	cfg *config.Config
}

// newApplication initializes all daemon components from the configuration.
func newApplication(ctx context.Context, cfg *config.Config, logger observability.Logger) (*application, error) {
	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  "avaccess",
		Enabled:      cfg.Tracing.Enabled,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing tracer: %w", err)
	}

	metrics := filter.NewMetrics("avaccess")
	metrics.Init()

	decisionCache, backing, err := buildDecisionCache(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	f, err := buildFilter(cfg, logger, metrics, decisionCache)
	if err != nil {
		return nil, err
	}

	app := &application{
		logger:        logger,
		filter:        f,
		metrics:       metrics,
		tracer:        tracer,
		healthChecker: health.NewChecker(version),
		backingCache:  backing,
		cfg:           cfg,
	}

	if cfg.RateLimit.Enabled {
		app.limiter = middleware.NewRateLimiter(
			cfg.RateLimit.RequestsPerSecond,
			cfg.RateLimit.Burst,
			cfg.RateLimit.PerClient,
			middleware.WithRateLimiterLogger(logger),
		)
	}

	app.registerHealthChecks()

	app.server = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           app.buildRouter(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	if cfg.Server.MetricsAddr != "" {
		app.metricsServer = &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           app.buildMetricsRouter(),
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
		}
	}

	return app, nil
}

// buildDecisionCache constructs the configured decision cache backend.
// The second return value is the backing store, which the caller owns
// and must close on shutdown.
func buildDecisionCache(
	ctx context.Context,
	cfg *config.Config,
	logger observability.Logger,
) (filter.DecisionCache, cache.Cache, error) {
	if !cfg.Cache.Enabled {
		return filter.NewNoopDecisionCache(), nil, nil
	}

	ttl := cfg.Cache.TTL.Duration()

	var (
		backing cache.Cache
		err     error
	)
	switch cfg.Cache.Type {
	case "redis":
		backing, err = cache.NewRedis(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			TTL:      ttl,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to redis cache: %w", err)
		}
	default:
		backing = cache.NewMemory(cache.MemoryConfig{
			MaxEntries: cfg.Cache.MaxEntries,
			TTL:        ttl,
		}, logger)
	}

	return filter.NewDecisionCache(backing, ttl, filter.WithDecisionCacheLogger(logger)), backing, nil
}

// buildFilter constructs the access filter from the configuration.
func buildFilter(
	cfg *config.Config,
	logger observability.Logger,
	metrics *filter.Metrics,
	decisionCache filter.DecisionCache,
) (*filter.Filter, error) {
	opts := []filter.Option{
		filter.WithLogger(logger),
		filter.WithMetrics(metrics),
		filter.WithDecisionCache(decisionCache),
	}
	if cfg.Filter.HostPrefix != "" {
		opts = append(opts, filter.WithHostPrefix(cfg.Filter.HostPrefix))
	}
	if cfg.Filter.UseFullURL {
		opts = append(opts, filter.WithFullURLs())
	}

	f := filter.New(opts...)
	if err := applyFilterConfig(f, cfg); err != nil {
		return nil, err
	}
	return f, nil
}

// applyFilterConfig loads defaults and rules into the filter as one
// configuration swap, so concurrent requests never evaluate against a
// partially loaded table. Redirect destinations may name a configured
// route, in which case the route template is resolved to its path.
func applyFilterConfig(f *filter.Filter, cfg *config.Config) error {
	resolver := buildResolver(cfg)

	settings := filter.Settings{
		Default:      resolveTarget(resolver, cfg.Filter.Default),
		RoleDefaults: make(map[string]string, len(cfg.Filter.RoleDefaults)),
		Rules:        make([]filter.Rule, 0, len(cfg.Filter.Rules)),
	}
	for role, uri := range cfg.Filter.RoleDefaults {
		settings.RoleDefaults[role] = resolveTarget(resolver, uri)
	}
	for _, rule := range cfg.Filter.Rules {
		settings.Rules = append(settings.Rules, filter.Rule{
			Pattern: rule.Pattern,
			Allow:   rule.Allow,
			Deny:    rule.Deny,
		})
	}

	if err := f.Configure(settings); err != nil {
		return fmt.Errorf("loading filter configuration: %w", err)
	}
	return nil
}

// buildResolver builds the named route resolver from the configuration.
func buildResolver(cfg *config.Config) *routes.StaticResolver {
	if len(cfg.Routes) == 0 {
		return nil
	}
	resolver := routes.NewStatic(cfg.Filter.HostPrefix)
	for _, route := range cfg.Routes {
		resolver.Register(route.Name, route.Path)
	}
	return resolver
}

// resolveTarget resolves a redirect destination. Values naming a
// configured route resolve to that route's path; anything else is used
// as a literal URI.
func resolveTarget(resolver *routes.StaticResolver, value string) string {
	if resolver == nil {
		return value
	}
	resolved, err := resolver.Resolve(value, nil, false)
	if err != nil {
		return value
	}
	return resolved
}

// buildRouter builds the main request router with the middleware chain.
func (app *application) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	roleHeader := app.cfg.Server.RoleHeader
	if roleHeader == "" {
		roleHeader = filter.RoleHeader
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logging(app.logger))
	if app.limiter != nil {
		router.Use(middleware.RateLimit(app.limiter))
	}
	router.Use(filter.GinMiddleware(app.filter, filter.HeaderRoleFunc(roleHeader), app.logger))

	// Requests that pass the filter get an explicit allow response, so
	// the daemon can serve as a forward-auth endpoint.
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}

// buildMetricsRouter builds the metrics and health router.
func (app *application) buildMetricsRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	app.healthChecker.Register(router)

	return router
}

// registerHealthChecks registers readiness checks for the daemon's
// dependencies.
func (app *application) registerHealthChecks() {
	if app.backingCache != nil {
		app.healthChecker.RegisterCheck("decision_cache", func() health.Check {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := app.backingCache.Set(ctx, "readiness-probe", []byte("ok"), time.Minute); err != nil {
				return health.Check{Status: health.StatusUnhealthy, Message: err.Error()}
			}
			return health.Check{Status: health.StatusHealthy}
		})
	}
}

// start launches the HTTP listeners.
func (app *application) start(_ context.Context) {
	go func() {
		app.logger.Info("starting server", observability.String("addr", app.server.Addr))
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Fatal("server error", observability.Error(err))
		}
	}()

	if app.metricsServer != nil {
		go func() {
			app.logger.Info("starting metrics server",
				observability.String("addr", app.metricsServer.Addr))
			if err := app.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				app.logger.Error("metrics server error", observability.Error(err))
			}
		}()
	}
}

// reload applies a changed configuration to the running filter. Only
// defaults, role overrides, and rules take effect without a restart;
// listener addresses, host prefixing, and cache settings require one.
func (app *application) reload(newCfg *config.Config) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	if newCfg.Filter.HostPrefix != app.cfg.Filter.HostPrefix ||
		newCfg.Filter.UseFullURL != app.cfg.Filter.UseFullURL {
		app.logger.Warn("hostPrefix and useFullUrl changes require a restart")
	}

	if err := applyFilterConfig(app.filter, newCfg); err != nil {
		return err
	}

	app.cfg = newCfg
	app.logger.Info("filter reloaded",
		observability.Int("rules", len(newCfg.Filter.Rules)),
		observability.Int("role_defaults", len(newCfg.Filter.RoleDefaults)),
	)
	return nil
}

// shutdown stops all components gracefully.
func (app *application) shutdown(logger observability.Logger) {
	timeout := app.cfg.Server.ShutdownTimeout.Duration()
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		logger.Error("failed to stop server gracefully", observability.Error(err))
	}

	if app.metricsServer != nil {
		if err := app.metricsServer.Shutdown(ctx); err != nil {
			logger.Error("failed to stop metrics server gracefully", observability.Error(err))
		}
	}

	if app.limiter != nil {
		app.limiter.Stop()
	}

	if app.backingCache != nil {
		if err := app.backingCache.Close(); err != nil {
			logger.Error("failed to close decision cache", observability.Error(err))
		}
	}

	if err := app.tracer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	logger.Info("avaccess stopped")
}
