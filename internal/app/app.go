// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/notification-garden/internal/config"
	"github.com/bissquit/notification-garden/internal/history"
	historypostgres "github.com/bissquit/notification-garden/internal/history/postgres"
	"github.com/bissquit/notification-garden/internal/notifications"
	notificationspostgres "github.com/bissquit/notification-garden/internal/notifications/postgres"
	"github.com/bissquit/notification-garden/internal/pkg/ctxlog"
	"github.com/bissquit/notification-garden/internal/pkg/httputil"
	"github.com/bissquit/notification-garden/internal/pkg/metrics"
	"github.com/bissquit/notification-garden/internal/pkg/postgres"
	"github.com/bissquit/notification-garden/internal/preferences"
	preferencespostgres "github.com/bissquit/notification-garden/internal/preferences/postgres"
	"github.com/bissquit/notification-garden/internal/providers/email"
	"github.com/bissquit/notification-garden/internal/providers/inapp"
	"github.com/bissquit/notification-garden/internal/providers/sms"
	"github.com/bissquit/notification-garden/internal/scheduler"
	schedulerpostgres "github.com/bissquit/notification-garden/internal/scheduler/postgres"
	"github.com/bissquit/notification-garden/internal/templates"
	templatespostgres "github.com/bissquit/notification-garden/internal/templates/postgres"
	"github.com/bissquit/notification-garden/internal/version"
	"github.com/bissquit/notification-garden/migrations"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	scheduler     *scheduler.Scheduler
	manager       *notifications.Manager
}

// New creates a new application instance: it connects to the database,
// applies migrations and wires all services.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := postgres.Migrate(cfg.Database.URL, migrations.FS, "."); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    int(cfg.Database.MaxConns),
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
	}

	router, err := app.setupRouter()
	if err != nil {
		db.Close()
		metricsCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	go app.collectDBMetrics(metricsCtx)
	go app.collectQueueMetrics(metricsCtx)

	app.server = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers and the scheduler loop.
func (a *App) Run() error {
	if a.config.Scheduler.Enabled {
		go a.scheduler.Run(context.Background())
	} else {
		a.logger.Warn("scheduler disabled: scheduled notifications will not be delivered")
	}

	go func() {
		a.logger.Info("starting metrics server", "addr", a.config.Metrics.Addr)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server", "addr", a.config.Server.Addr)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the application. The scheduler stops
// first so no delivery is in flight when the pool closes.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	a.metricsCancel()

	if a.config.Scheduler.Enabled {
		a.scheduler.Stop()
	}

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	a.db.Close()

	return errors.Join(errs...)
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Scheduler returns the scheduler instance. Used in tests to force
// cycles.
func (a *App) Scheduler() *scheduler.Scheduler {
	return a.scheduler
}

func (a *App) setupRouter() (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	templatesRepo := templatespostgres.NewRepository(a.db)
	templatesService := templates.NewService(templatesRepo)
	templatesHandler := templates.NewHandler(templatesService)

	preferencesRepo := preferencespostgres.NewRepository(a.db)
	preferencesService := preferences.NewService(preferencesRepo)
	preferencesHandler := preferences.NewHandler(preferencesService)

	historyRepo := historypostgres.NewRepository(a.db)
	ledger := history.NewLedger(historyRepo)
	historyHandler := history.NewHandler(ledger)

	providers, err := a.buildProviders()
	if err != nil {
		return nil, err
	}
	gateway := notifications.NewGateway(providers...)

	notificationsRepo := notificationspostgres.NewRepository(a.db)
	a.manager = notifications.NewManager(notificationsRepo, gateway, preferencesService, templatesService, ledger)
	notificationsHandler := notifications.NewHandler(a.manager)

	schedulerRepo := schedulerpostgres.NewRepository(a.db)
	a.scheduler = scheduler.New(schedulerRepo, a.manager, scheduler.Config{
		PollInterval: a.config.Scheduler.PollInterval,
		BatchSize:    a.config.Scheduler.BatchSize,
	})
	schedulerHandler := scheduler.NewHandler(a.scheduler)

	r.Route("/api/v1", func(r chi.Router) {
		templatesHandler.RegisterRoutes(r)
		preferencesHandler.RegisterRoutes(r)
		notificationsHandler.RegisterRoutes(r)
		schedulerHandler.RegisterRoutes(r)
		historyHandler.RegisterRoutes(r)
	})

	return r, nil
}

// buildProviders creates the channel providers enabled in config. The
// in-app provider is always available since it only needs the database.
func (a *App) buildProviders() ([]notifications.Provider, error) {
	providers := []notifications.Provider{inapp.New(a.db)}

	if a.config.Providers.Email.Enabled {
		emailProvider, err := email.New(email.Config{
			SMTPHost:      a.config.Providers.Email.SMTPHost,
			SMTPPort:      a.config.Providers.Email.SMTPPort,
			SMTPUser:      a.config.Providers.Email.SMTPUser,
			SMTPPassword:  a.config.Providers.Email.SMTPPassword,
			FromAddress:   a.config.Providers.Email.FromAddress,
			RatePerSecond: a.config.Providers.Email.RatePerSecond,
		})
		if err != nil {
			return nil, fmt.Errorf("create email provider: %w", err)
		}
		providers = append(providers, emailProvider)
	} else {
		a.logger.Warn("email provider disabled: email notifications will be rejected")
	}

	if a.config.Providers.SMS.Enabled {
		smsProvider, err := sms.New(sms.Config{
			GatewayURL:    a.config.Providers.SMS.GatewayURL,
			APIKey:        a.config.Providers.SMS.APIKey,
			SenderID:      a.config.Providers.SMS.SenderID,
			RatePerSecond: a.config.Providers.SMS.RatePerSecond,
		})
		if err != nil {
			return nil, fmt.Errorf("create sms provider: %w", err)
		}
		providers = append(providers, smsProvider)
	} else {
		a.logger.Warn("sms provider disabled: sms notifications will be rejected")
	}

	return providers, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) collectQueueMetrics(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			counts, err := a.manager.QueueStats(ctx)
			if err != nil {
				slog.Error("failed to get queue stats", "error", err)
				continue
			}
			for status, count := range counts {
				notifications.StatusCount.WithLabelValues(string(status)).Set(float64(count))
			}

			scheduleCounts, err := a.scheduler.QueueStats(ctx)
			if err != nil {
				slog.Error("failed to get schedule stats", "error", err)
				continue
			}
			for status, count := range scheduleCounts {
				scheduler.QueueDepth.WithLabelValues(string(status)).Set(float64(count))
			}
		case <-ctx.Done():
			return
		}
	}
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
