// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ambrood/sitepulse/adapters/clock"
	"github.com/ambrood/sitepulse/adapters/geo"
	"github.com/ambrood/sitepulse/adapters/idgen"
	"github.com/ambrood/sitepulse/adapters/memory"
	"github.com/ambrood/sitepulse/adapters/metrics"
	"github.com/ambrood/sitepulse/adapters/sqlite"
	"github.com/ambrood/sitepulse/app"
	"github.com/ambrood/sitepulse/config"
	"github.com/ambrood/sitepulse/domain/query"
	"github.com/ambrood/sitepulse/domain/ratelimit"
	"github.com/ambrood/sitepulse/ports"
	"github.com/ambrood/sitepulse/web"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Holder
	DB         *sqlite.DB // nil with the memory driver
	HTTPServer *http.Server
	Metrics    *metrics.Collector

	// Services
	Ingest    *app.IngestService
	Analytics *app.AnalyticsService
	Retention *app.RetentionService
	Reporter  *app.PerformanceReporter

	store    ports.AnalyticsStore
	recorder ports.EventRecorder
	cron     *cron.Cron
	stopCh   chan struct{}
}

// Options configures application initialization.
type Options struct {
	// ConfigPath points at the YAML config file. Empty falls back to
	// SITEPULSE_* environment variables.
	ConfigPath string

	// Watch enables config hot reload (file watch + SIGHUP).
	Watch bool
}

// New creates and initializes the application.
func New(opts Options) (*App, error) {
	holder, logger, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg := holder.Get()

	logger.Info().Str("version", Version).Msg("initializing sitepulse")

	a := &App{
		Logger: logger,
		Config: holder,
		stopCh: make(chan struct{}),
	}

	if err := a.initStore(cfg); err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		a.Metrics = metrics.New(registry)
		logger.Info().Msg("prometheus metrics enabled")
	}

	a.initServices(cfg)
	a.initHTTPServer(cfg, registry)
	a.initScheduler(cfg)

	if opts.Watch {
		if err := holder.WatchFile(); err != nil {
			logger.Warn().Err(err).Msg("config file watch unavailable")
		}
		holder.WatchSignals()
	}
	holder.OnChange(a.applyConfig)

	return a, nil
}

// loadConfig loads configuration and builds the root logger from it.
func loadConfig(path string) (*config.Holder, zerolog.Logger, error) {
	bootLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	var holder *config.Holder
	var err error
	if path != "" {
		holder, err = config.NewHolder(path, bootLogger)
		if err != nil {
			return nil, bootLogger, err
		}
	} else {
		cfg, envErr := config.LoadFromEnv()
		if envErr != nil {
			return nil, bootLogger, envErr
		}
		holder = config.NewStaticHolder(cfg, bootLogger)
	}

	logger := setupLogger(holder.Get().Logging)
	return holder, logger, nil
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func (a *App) initStore(cfg *config.Config) error {
	switch cfg.Database.Driver {
	case "memory":
		a.store = memory.NewAnalyticsStore()
		a.Logger.Info().Msg("using in-memory store, data is not persisted")
	default:
		db, err := sqlite.Open(cfg.Database.DSN)
		if err != nil {
			return err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return fmt.Errorf("migrate: %w", err)
		}
		a.DB = db
		a.store = sqlite.NewAnalyticsStore(db)
		a.Logger.Info().Str("dsn", cfg.Database.DSN).Msg("database initialized")
	}
	return nil
}

func (a *App) initServices(cfg *config.Config) {
	realClock := clock.Real{}
	logger := a.Logger

	if cfg.Recorder.Mode == "sync" {
		a.recorder = app.NewSyncRecorder(a.store, logger.With().Str("component", "recorder").Logger())
	} else {
		a.recorder = app.NewBufferedRecorder(
			a.store,
			logger.With().Str("component", "recorder").Logger(),
			a.Metrics,
			cfg.Recorder.BatchSize,
			cfg.Recorder.FlushInterval,
		)
	}

	var locator ports.GeoLocator
	if cfg.Geo.Enabled {
		locator = geo.NewHTTPLocator(cfg.Geo.BaseURL, cfg.Geo.Timeout)
		logger.Info().Str("base_url", cfg.Geo.BaseURL).Msg("geo lookup enabled")
	}

	limitCfg := ratelimit.Config{Limit: cfg.RateLimit.Limit, Window: cfg.RateLimit.Window()}
	if !cfg.RateLimit.Enabled {
		// An effectively unlimited window keeps the code path uniform.
		limitCfg.Limit = int(^uint(0) >> 1)
	}

	a.Ingest = app.NewIngestService(app.IngestDeps{
		Recorder: a.recorder,
		Limits:   memory.NewRateLimitStore(),
		LimitCfg: limitCfg,
		Geo:      locator,
		Clock:    realClock,
		IDs:      idgen.UUID{},
		Logger:   logger.With().Str("component", "ingest").Logger(),
		Metrics:  a.Metrics,
		SiteHost: cfg.Site.Host,
	})

	thresholds := query.Thresholds{
		ExactMaxDays:    cfg.Analytics.ExactMaxDays,
		MinExactRecords: cfg.Analytics.MinExactRecords,
		MaxRecords:      cfg.Analytics.MaxRecords,
	}
	a.Analytics = app.NewAnalyticsService(a.store, thresholds, realClock,
		logger.With().Str("component", "analytics").Logger(), a.Metrics)
	a.Retention = app.NewRetentionService(a.store, realClock,
		logger.With().Str("component", "retention").Logger(), a.Metrics)
	a.Reporter = app.NewPerformanceReporter(a.store, thresholds, realClock,
		logger.With().Str("component", "reporter").Logger())
}

func (a *App) initHTTPServer(cfg *config.Config, registry *prometheus.Registry) {
	var metricsHandler http.Handler
	if registry != nil {
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}

	handler := web.NewHandler(web.Deps{
		Ingest:    a.Ingest,
		Analytics: a.Analytics,
		Retention: a.Retention,
		Reporter:  a.Reporter,
		Store:     a.store,
		Clock:     clock.Real{},
		Logger:    a.Logger.With().Str("component", "web").Logger(),
		Metrics:   metricsHandler,
		Version:   Version,
	})

	a.HTTPServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

// initScheduler registers the periodic jobs: the retention sweep (when a
// schedule is configured) and rate limit state cleanup.
func (a *App) initScheduler(cfg *config.Config) {
	a.cron = cron.New()

	if cfg.Retention.Schedule != "" {
		_, err := a.cron.AddFunc(cfg.Retention.Schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			days := a.Config.Get().Retention.Days
			if _, err := a.Retention.Sweep(ctx, days); err != nil {
				a.Logger.Error().Err(err).Msg("scheduled retention sweep failed")
			}
		})
		if err != nil {
			a.Logger.Error().Err(err).
				Str("schedule", cfg.Retention.Schedule).
				Msg("invalid retention schedule, scheduled sweeps disabled")
		} else {
			a.Logger.Info().
				Str("schedule", cfg.Retention.Schedule).
				Int("days", cfg.Retention.Days).
				Msg("scheduled retention sweep registered")
		}
	}

	a.cron.Schedule(cron.Every(cfg.RateLimit.CleanupInterval), cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		removed, err := a.Ingest.CleanupRateLimits(ctx)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("rate limit cleanup failed")
			return
		}
		if removed > 0 {
			a.Logger.Debug().Int("removed", removed).Msg("rate limit state cleaned up")
		}
	}))
}

// applyConfig pushes reloadable settings into running services.
func (a *App) applyConfig(cfg *config.Config) {
	limitCfg := ratelimit.Config{Limit: cfg.RateLimit.Limit, Window: cfg.RateLimit.Window()}
	if !cfg.RateLimit.Enabled {
		limitCfg.Limit = int(^uint(0) >> 1)
	}
	a.Ingest.SetRateLimit(limitCfg)

	a.Analytics.SetThresholds(query.Thresholds{
		ExactMaxDays:    cfg.Analytics.ExactMaxDays,
		MinExactRecords: cfg.Analytics.MinExactRecords,
		MaxRecords:      cfg.Analytics.MaxRecords,
	})

	setupLogger(cfg.Logging)
	a.Logger.Info().Msg("reloadable settings applied")
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	a.cron.Start()

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.cron != nil {
		<-a.cron.Stop().Done()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	// Flush buffered events before the store goes away.
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("recorder close error")
		}
	}

	if a.Config != nil {
		a.Config.Stop()
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// Store exposes the analytics store for one-shot CLI commands.
func (a *App) Store() ports.AnalyticsStore {
	return a.store
}
