package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"

	"github.com/memberhub/roster-sync/internal/api"
	"github.com/memberhub/roster-sync/internal/auth"
	"github.com/memberhub/roster-sync/internal/app/storage"
	"github.com/memberhub/roster-sync/internal/clock"
	"github.com/memberhub/roster-sync/internal/config"
	"github.com/memberhub/roster-sync/internal/credentials"
	"github.com/memberhub/roster-sync/internal/events"
	"github.com/memberhub/roster-sync/internal/httpclient"
	"github.com/memberhub/roster-sync/internal/lock"
	"github.com/memberhub/roster-sync/internal/reconcile"
	"github.com/memberhub/roster-sync/internal/roster"
	"github.com/memberhub/roster-sync/internal/scheduler"
	"github.com/memberhub/roster-sync/internal/service"
	"github.com/memberhub/roster-sync/internal/store"
	"github.com/memberhub/roster-sync/internal/telemetry"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// RosterAppOptions configures the application builder
type RosterAppOptions func(*rosterAppConfig) error

type rosterAppConfig struct {
	config *config.Config

	// Optional component overrides, mainly for tests.
	storageFactory storage.Factory
	httpClient     httpclient.Client
	credentials    credentials.Provider
	fetcher        roster.Fetcher
	publisher      events.Publisher
	locker         lock.Locker
	clock          clock.Clock

	logger     *slog.Logger
	cronLogger logr.Logger
	telemetry  *telemetry.Telemetry

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
}

func baseConfig(opts ...RosterAppOptions) (*rosterAppConfig, error) {
	cfg := &rosterAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
		logger:         slog.Default(),
		cronLogger:     logr.Discard(),
		clock:          clock.NewSystem(),
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return cfg, nil
}

// NewRosterApp builds the application from its options.
func NewRosterApp(ctx context.Context, opts ...RosterAppOptions) (*RosterApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			cleanup()
		}
	}()

	if cfg.storageFactory == nil {
		var factoryOpts []storage.DatabaseFactoryOption
		if cfg.telemetry != nil {
			factoryOpts = append(factoryOpts, storage.WithTracer(cfg.telemetry.Tracer(reconcile.TracerName)))
		}
		cfg.storageFactory, err = storage.NewStorageFactory(ctx, cfg.config, factoryOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage factory: %w", err)
		}
	}
	cleanups = append(cleanups, cfg.storageFactory.Cleanup)

	components, err := buildComponents(ctx, cfg, &cleanups)
	if err != nil {
		return nil, err
	}

	httpServer, err := buildHTTPServer(cfg, components.RunService)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	cleanupNeeded = false

	return &RosterApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		logger:     cfg.logger,
		ctx:        appCtx,
		cancelFunc: cancel,
		cleanup:    cleanup,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares replaces the default HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithLogger sets the application logger.
func WithLogger(l *slog.Logger) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		if l != nil {
			cfg.logger = l
		}
		return nil
	}
}

// WithCronLogger sets the logr logger handed to the cron library.
func WithCronLogger(l logr.Logger) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		cfg.cronLogger = l
		return nil
	}
}

// WithTelemetry enables tracing and metrics from t.
func WithTelemetry(t *telemetry.Telemetry) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// WithStorageFactory injects a storage factory (for testing)
func WithStorageFactory(f storage.Factory) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		cfg.storageFactory = f
		return nil
	}
}

// WithHTTPClient injects the client used for remote calls (for testing)
func WithHTTPClient(c httpclient.Client) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		cfg.httpClient = c
		return nil
	}
}

// WithCredentials injects a credential provider (for testing)
func WithCredentials(p credentials.Provider) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		cfg.credentials = p
		return nil
	}
}

// WithFetcher injects a roster fetcher (for testing)
func WithFetcher(f roster.Fetcher) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		cfg.fetcher = f
		return nil
	}
}

// WithPublisher injects an event publisher (for testing)
func WithPublisher(p events.Publisher) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		cfg.publisher = p
		return nil
	}
}

// WithLocker injects a run lock (for testing)
func WithLocker(l lock.Locker) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		cfg.locker = l
		return nil
	}
}

// WithClock injects the clock shared by every component (for testing)
func WithClock(c clock.Clock) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		if c != nil {
			cfg.clock = c
		}
		return nil
	}
}

func buildComponents(ctx context.Context, b *rosterAppConfig, cleanups *[]func()) (*AppComponents, error) {
	b.logger.Info("Initializing reconciliation components")

	repo, err := b.storageFactory.CreateRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create membership repository: %w", err)
	}
	persistence, err := b.storageFactory.CreateStatusPersistence(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create status persistence: %w", err)
	}

	runner, err := buildRunner(b, repo)
	if err != nil {
		return nil, err
	}

	if b.locker == nil {
		locker, closeLock, err := lock.New(b.config.Lock, b.config.GetDataDir())
		if err != nil {
			return nil, fmt.Errorf("failed to create run lock: %w", err)
		}
		b.locker = locker
		*cleanups = append(*cleanups, func() {
			if err := closeLock(); err != nil {
				b.logger.Error("Failed to close run lock", "error", err)
			}
		})
	}

	if b.publisher == nil {
		b.publisher, err = events.New(b.config.Events, b.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create event publisher: %w", err)
		}
	}
	*cleanups = append(*cleanups, b.publisher.Close)

	location, err := b.config.Schedule.GetLocation()
	if err != nil {
		return nil, err
	}

	sched, err := scheduler.New(runner,
		scheduler.WithStatusPersistence(persistence),
		scheduler.WithPublisher(b.publisher),
		scheduler.WithLocker(b.locker),
		scheduler.WithClock(b.clock),
		scheduler.WithLogger(b.logger),
		scheduler.WithCronLogger(b.cronLogger),
		scheduler.WithLocation(location),
		scheduler.WithRunOnStartup(b.config.Schedule.RunOnStartup),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	b.logger.Info("Reconciliation components initialized")
	return &AppComponents{
		Repository: repo,
		Status:     persistence,
		Runner:     runner,
		Scheduler:  sched,
		RunService: service.New(repo, persistence, sched),
	}, nil
}

func buildRunner(b *rosterAppConfig, repo store.Store) (*reconcile.Orchestrator, error) {
	if b.httpClient == nil {
		b.httpClient = httpclient.NewDefaultClient(
			httpclient.WithTimeout(b.config.Remote.GetRequestTimeout()),
		)
	}

	if b.credentials == nil {
		creds, err := credentials.NewProvider(&b.config.Auth, b.httpClient,
			credentials.WithClock(b.clock),
			credentials.WithLogger(b.logger),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create credential provider: %w", err)
		}
		b.credentials = creds
	}

	var tracerOpts []roster.Option
	var runnerOpts []reconcile.Option
	if b.telemetry != nil {
		tracer := b.telemetry.Tracer(reconcile.TracerName)
		tracerOpts = append(tracerOpts, roster.WithTracer(tracer))
		runnerOpts = append(runnerOpts, reconcile.WithTracer(tracer))

		metrics, err := telemetry.NewReconcileMetrics(b.telemetry.MeterProvider())
		if err != nil {
			return nil, fmt.Errorf("failed to create reconcile metrics: %w", err)
		}
		runnerOpts = append(runnerOpts, reconcile.WithMetrics(metrics))
	}

	if b.fetcher == nil {
		b.fetcher = roster.NewClient(b.httpClient,
			roster.SettingsFromConfig(&b.config.Remote),
			append(tracerOpts, roster.WithLogger(b.logger))...,
		)
	}

	runnerOpts = append(runnerOpts, reconcile.WithConcurrency(b.config.Reconcile.GetConcurrency()))
	runner, err := reconcile.New(reconcile.Dependencies{
		Store:       repo,
		Credentials: b.credentials,
		Fetcher:     b.fetcher,
		Logger:      b.logger,
		Clock:       b.clock,
	}, runnerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	return runner, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(b *rosterAppConfig, svc service.RunService) (*http.Server, error) {
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	authMw, err := auth.NewAuthMiddleware(b.config.APIAuth)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth middleware: %w", err)
	}
	b.middlewares = append(b.middlewares, authMw)

	serverOpts := []api.ServerOption{}
	if b.telemetry != nil {
		httpMetrics, err := telemetry.NewHTTPMetrics(b.telemetry.MeterProvider())
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
		}
		// Telemetry wraps the whole chain so rejected requests are counted.
		b.middlewares = append([]func(http.Handler) http.Handler{
			telemetry.TracingMiddleware(b.telemetry.TracerProvider()),
			httpMetrics.Middleware,
		}, b.middlewares...)

		if h := b.telemetry.MetricsHandler(); h != nil {
			serverOpts = append(serverOpts, api.WithMetricsHandler(h))
		}
	}
	serverOpts = append(serverOpts, api.WithMiddlewares(b.middlewares...))

	server := &http.Server{
		Addr:              b.address,
		Handler:           api.NewServer(svc, serverOpts...),
		ReadTimeout:       b.readTimeout,
		ReadHeaderTimeout: b.readTimeout,
		WriteTimeout:      b.writeTimeout,
		IdleTimeout:       b.idleTimeout,
	}

	b.logger.Info("HTTP server configured", "address", b.address)
	return server, nil
}
