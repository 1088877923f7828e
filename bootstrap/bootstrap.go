// Package bootstrap wires all dependencies and starts the application.
// Everything is built from a config.Config; with hot reload the rate limit,
// price table and log level follow the config file.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/artpar/pulse/adapters/clock"
	"github.com/artpar/pulse/adapters/geo"
	"github.com/artpar/pulse/adapters/hasher"
	apihttp "github.com/artpar/pulse/adapters/http"
	"github.com/artpar/pulse/adapters/http/admin"
	"github.com/artpar/pulse/adapters/idgen"
	"github.com/artpar/pulse/adapters/memory"
	"github.com/artpar/pulse/adapters/metrics"
	"github.com/artpar/pulse/adapters/postgres"
	"github.com/artpar/pulse/adapters/redis"
	"github.com/artpar/pulse/adapters/render"
	"github.com/artpar/pulse/adapters/s3"
	"github.com/artpar/pulse/adapters/sink"
	"github.com/artpar/pulse/adapters/sqlite"
	"github.com/artpar/pulse/app"
	"github.com/artpar/pulse/config"
	"github.com/artpar/pulse/domain/event"
	"github.com/artpar/pulse/ports"
)

// Version is reported by /version and the admin doctor endpoint.
var Version = "dev"

// App represents the running application.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	DB         *sqlite.DB
	HTTPServer *http.Server
	Handler    http.Handler
	Metrics    *metrics.Collector
	Registry   *prometheus.Registry

	// Services
	Limiter    *app.RateLimiter
	Keys       *app.KeyService
	Buffers    *app.BufferManager
	Ingestion  *app.IngestionService
	Engine     *app.Engine
	Exports    *app.ExportService
	Aggregator *app.MetricsAggregator
	Costs      *app.CostMonitor

	holder    *config.Holder
	scheduler *Scheduler
	sink      *sink.FanOut
	closers   []namedCloser
	stopRun   context.CancelFunc
}

type namedCloser struct {
	name string
	c    io.Closer
}

// New creates and initializes the application from a fixed configuration.
func New(cfg *config.Config) (*App, error) {
	logger := SetupLogger(cfg.Logging, os.Stdout)
	return build(cfg, logger)
}

// NewWithHotReload loads path and keeps watching it. Reloadable fields are
// applied to the running services; the rest need a restart.
func NewWithHotReload(path string) (*App, error) {
	bootLogger := SetupLogger(config.LoggingConfig{Level: "info"}, os.Stdout)

	holder, err := config.NewHolder(path, bootLogger)
	if err != nil {
		return nil, err
	}
	cfg := holder.Get()
	logger := SetupLogger(cfg.Logging, os.Stdout)

	a, err := build(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.holder = holder

	if a.Metrics != nil {
		holder.RecordReloads(a.Metrics)
	}
	holder.OnChange(a.applyConfig)
	if err := holder.WatchFile(); err != nil {
		logger.Warn().Err(err).Msg("config file watch unavailable, SIGHUP only")
	}
	holder.WatchSignals()

	return a, nil
}

func build(cfg *config.Config, logger zerolog.Logger) (a *App, err error) {
	logger.Info().Str("version", Version).Msg("initializing pulse")

	a = &App{
		Config: cfg,
		Logger: logger,
	}
	defer func() {
		if err != nil {
			a.closeAll()
		}
	}()

	ctx := context.Background()
	clk := clock.Real{}

	var observer ports.Observer = ports.NopObserver{}
	if cfg.Metrics.Enabled {
		a.Registry = prometheus.NewRegistry()
		a.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = metrics.NewWithRegistry(a.Registry)
		observer = a.Metrics
		logger.Info().Str("path", cfg.Metrics.Path).Msg("prometheus metrics enabled")
	}

	if err := a.initDatabase(); err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	events := sqlite.NewEventStore(a.DB)

	if err := a.initSink(ctx, events); err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	cache, err := a.initCache(ctx, clk)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}

	objects, err := a.initObjects(ctx, clk)
	if err != nil {
		return nil, fmt.Errorf("init object store: %w", err)
	}

	resolver, err := a.initGeo()
	if err != nil {
		return nil, fmt.Errorf("init geo: %w", err)
	}

	a.Limiter = app.NewRateLimiter(cache, clk, logger, cfg.Ingestion.RateLimitPerMinute)

	a.Keys = app.NewKeyService(app.KeyDeps{
		Store:  sqlite.NewKeyStore(a.DB),
		Hasher: hasher.NewBcrypt(cfg.Keys.HashCost),
		Clock:  clk,
		IDGen:  idgen.UUID{Prefix: "key_"},
		Logger: logger,
	}, cfg.Keys.CacheTTL)

	a.Buffers = app.NewBufferManager(a.sink, app.BufferConfig{
		FlushSize:     cfg.Buffer.FlushSize,
		MaxBuffered:   cfg.Buffer.MaxBuffered,
		FlushInterval: cfg.Buffer.FlushInterval,
		FlushTimeout:  cfg.Buffer.FlushTimeout,
		CloseRetries:  cfg.Buffer.CloseRetries,
		CloseBackoff:  app.DefaultBufferConfig().CloseBackoff,
	}, logger, observer)
	// Buffers.Close drains into the sink and then closes it.
	a.release("sink")
	if a.Registry != nil {
		metrics.RegisterBufferGauge(a.Registry, a.Buffers.Len)
	}

	a.Ingestion = app.NewIngestionService(app.IngestionDeps{
		Limiter:  a.Limiter,
		Enricher: app.NewEnricher(resolver, clk, cfg.Geo.Timeout, logger),
		Buffers:  a.Buffers,
		Clock:    clk,
		IDGen:    idgen.UUID{Prefix: "evt_"},
		Logger:   logger,
		Observer: observer,
	}, event.Rules{
		MaxBatchSize: cfg.Ingestion.MaxBatchSize,
		MaxEventAge:  cfg.Ingestion.MaxEventAge,
		MaxClockSkew: cfg.Ingestion.MaxClockSkew,
	})

	a.Engine = app.NewEngine(app.EngineDeps{
		Query:    events,
		Cache:    cache,
		Clock:    clk,
		Logger:   logger,
		Observer: observer,
	})

	a.Exports = app.NewExportService(app.ExportDeps{
		Store:     sqlite.NewExportStore(a.DB),
		Objects:   objects,
		Engine:    a.Engine,
		Renderers: render.All(),
		Clock:     clk,
		IDGen:     idgen.UUID{Prefix: "exp_"},
		Logger:    logger,
		Observer:  observer,
	}, app.ExportConfig{
		MaxConcurrent: cfg.Exports.MaxConcurrent,
		MaxFileSize:   cfg.MaxFileSizeBytes(),
		URLTTL:        cfg.Exports.URLTTL,
		Retention:     cfg.Exports.Retention,
		JobTimeout:    cfg.Exports.JobTimeout,
	})

	rollups := sqlite.NewRollupStore(a.DB)
	a.Aggregator = app.NewMetricsAggregator(app.AggregatorDeps{
		Query:    events,
		Rollups:  rollups,
		Exports:  a.Exports,
		Clock:    clk,
		Logger:   logger,
		Observer: observer,
	}, app.AggregatorConfig{
		EventRetentionDays:  cfg.Aggregation.EventRetentionDays,
		RollupRetentionDays: cfg.Aggregation.RollupRetentionDays,
	})

	a.Costs = app.NewCostMonitor(cache, clk, logger, cfg.Costs.PriceTable())

	if cfg.Schedule.Enabled {
		a.scheduler = NewScheduler(a.Aggregator, logger)
		for job, spec := range cfg.Schedule.Jobs() {
			if err := a.scheduler.Add(job, spec); err != nil {
				return nil, fmt.Errorf("schedule %s: %w", job, err)
			}
		}
	}

	a.initHTTPServer(events, rollups, clk)
	return a, nil
}

func (a *App) initDatabase() error {
	path := a.Config.Database.Path

	db, err := sqlite.Open(path)
	if err != nil {
		return err
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	a.DB = db
	a.closers = append(a.closers, namedCloser{"database", db})
	a.Logger.Info().Str("path", path).Msg("database initialized")
	return nil
}

// initSink puts the sqlite event store first and every configured mirror
// behind it. A flush succeeds only when every sink accepted it.
func (a *App) initSink(ctx context.Context, events *sqlite.EventStore) error {
	var mirrors []sink.Named
	for _, m := range a.Config.Storage.Mirrors {
		pg, err := postgres.Open(ctx, m.DSN)
		if err != nil {
			for _, opened := range mirrors {
				opened.Sink.Close()
			}
			return fmt.Errorf("mirror %s: %w", m.Name, err)
		}
		mirrors = append(mirrors, sink.Named{Name: m.Name, Sink: pg})
		a.Logger.Info().Str("mirror", m.Name).Msg("postgres mirror connected")
	}

	a.sink = sink.NewFanOut(a.Logger, sink.Named{Name: "sqlite", Sink: events}, mirrors...)
	// Runs before the database closer.
	a.closers = append([]namedCloser{{"sink", a.sink}}, a.closers...)
	return nil
}

func (a *App) initCache(ctx context.Context, clk ports.Clock) (ports.Cache, error) {
	cfg := a.Config.Cache
	switch cfg.Driver {
	case "redis":
		c, err := redis.Open(ctx, cfg.URL, cfg.Prefix)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, namedCloser{"cache", c})
		a.Logger.Info().Msg("using redis cache")
		return c, nil
	default:
		c := memory.NewCache(clk)
		a.closers = append(a.closers, namedCloser{"cache", c})
		return c, nil
	}
}

func (a *App) initObjects(ctx context.Context, clk ports.Clock) (ports.ObjectStore, error) {
	cfg := a.Config.Objects
	switch cfg.Driver {
	case "s3":
		store, err := s3.New(ctx, s3.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		a.Logger.Info().Str("bucket", cfg.S3.Bucket).Msg("export files stored in s3")
		return store, nil
	default:
		return memory.NewObjectStore(cfg.BaseURL, clk), nil
	}
}

func (a *App) initGeo() (ports.GeoResolver, error) {
	cfg := a.Config.Geo
	if cfg.Driver != "maxmind" {
		return nil, nil
	}
	db, err := geo.OpenMaxMind(cfg.Database)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, namedCloser{"geo", db})
	a.Logger.Info().Str("database", cfg.Database).Msg("geoip enabled")
	return db, nil
}

func (a *App) initHTTPServer(events *sqlite.EventStore, rollups ports.RollupStore, clk ports.Clock) {
	cfg := a.Config
	maxBody := cfg.MaxBodyBytes()

	checks := map[string]apihttp.HealthChecker{
		"events": events,
		"sink":   a.sink,
	}
	adminChecks := make(map[string]admin.HealthChecker, len(checks))
	for name, c := range checks {
		adminChecks[name] = c
	}

	routerCfg := apihttp.RouterConfig{
		Ingest:         apihttp.NewIngestHandler(a.Ingestion, clk, a.Logger, maxBody),
		Analytics:      apihttp.NewAnalyticsHandler(a.Engine, a.Aggregator, rollups, clk, a.Logger),
		Exports:        apihttp.NewExportsHandler(a.Exports, clk, a.Logger, maxBody),
		Costs:          apihttp.NewCostsHandler(a.Costs, a.Logger, maxBody),
		Health:         apihttp.NewHealthHandler(checks),
		Auth:           apihttp.NewAuth(a.Keys, cfg.Admin.Token, a.Metrics, a.Logger),
		Metrics:        a.Metrics,
		MetricsPath:    cfg.Metrics.Path,
		EnableOpenAPI:  cfg.OpenAPI.Enabled,
		Version:        Version,
		RequestTimeout: cfg.Server.RequestTimeout,
	}
	if a.Registry != nil {
		routerCfg.MetricsHandler = promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{Registry: a.Registry})
	}
	if cfg.Admin.Token != "" {
		routerCfg.AdminHandler = admin.NewHandler(admin.Deps{
			Keys:       a.Keys,
			Buffers:    a.Buffers,
			Aggregator: a.Aggregator,
			Exports:    a.Exports,
			Checks:     adminChecks,
			Token:      cfg.Admin.Token,
			Version:    Version,
			Logger:     a.Logger,
		}).Router()
	} else {
		a.Logger.Warn().Msg("admin token not set, admin API disabled")
	}

	a.Handler = apihttp.NewRouter(routerCfg, a.Logger)
	a.HTTPServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      a.Handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

// applyConfig pushes reloadable settings into the running services.
func (a *App) applyConfig(cfg *config.Config) {
	a.Limiter.SetLimit(cfg.Ingestion.RateLimitPerMinute)
	a.Costs.SetPrices(cfg.Costs.PriceTable())
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	a.Config = cfg
}

// Start launches the background workers: periodic buffer flushes and
// scheduled aggregation jobs.
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopRun = cancel
	go a.Buffers.Run(ctx)
	if a.scheduler != nil {
		a.scheduler.Start()
		a.Logger.Info().Int("jobs", len(a.scheduler.Entries())).Msg("aggregation scheduler started")
	}
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	a.Start()

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown stops accepting requests, drains the buffers and releases every
// resource.
func (a *App) Shutdown() error {
	timeout := a.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.holder != nil {
		a.holder.Stop()
	}

	// Shutdown HTTP server
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.scheduler != nil {
		a.scheduler.Stop(ctx)
	}
	if a.stopRun != nil {
		a.stopRun()
	}

	var lost error
	if a.Buffers != nil {
		if err := a.Buffers.Close(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("buffer drain incomplete")
			lost = err
		}
	}
	if a.Exports != nil {
		a.Exports.Close()
	}

	a.closeAll()

	a.Logger.Info().Msg("shutdown complete")
	return lost
}

// release drops a closer whose resource is now closed by its owner.
func (a *App) release(name string) {
	kept := a.closers[:0]
	for _, c := range a.closers {
		if c.name != name {
			kept = append(kept, c)
		}
	}
	a.closers = kept
}

func (a *App) closeAll() {
	for _, c := range a.closers {
		if err := c.c.Close(); err != nil {
			a.Logger.Error().Err(err).Str("resource", c.name).Msg("close error")
		}
	}
	a.closers = nil
}

// SetupLogger builds the process logger and sets the global level.
func SetupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(out).With().Timestamp().Logger()
}
