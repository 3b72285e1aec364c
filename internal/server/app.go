// Package server wires the intake service dependencies into a runnable application.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/contact-intake/internal/api"
	"github.com/JakeFAU/contact-intake/internal/clock/system"
	"github.com/JakeFAU/contact-intake/internal/config"
	"github.com/JakeFAU/contact-intake/internal/crm"
	"github.com/JakeFAU/contact-intake/internal/crm/hubspot"
	"github.com/JakeFAU/contact-intake/internal/id/uuid"
	"github.com/JakeFAU/contact-intake/internal/intake"
	"github.com/JakeFAU/contact-intake/internal/logging"
	"github.com/JakeFAU/contact-intake/internal/metrics"
	"github.com/JakeFAU/contact-intake/internal/notify"
	memorypublisher "github.com/JakeFAU/contact-intake/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/contact-intake/internal/publisher/pubsub"
	"github.com/JakeFAU/contact-intake/internal/ratelimit"
	"github.com/JakeFAU/contact-intake/internal/sanitize"
	memorystorage "github.com/JakeFAU/contact-intake/internal/storage/memory"
	pgstore "github.com/JakeFAU/contact-intake/internal/storage/postgres"
	"github.com/JakeFAU/contact-intake/internal/telemetry"
	"github.com/JakeFAU/contact-intake/internal/validation"
)

const (
	defaultEventTopic = "lead-events"
	shutdownTimeout   = 10 * time.Second
)

// leadStore is what the application needs from either lead store backend.
type leadStore interface {
	intake.LeadStore
	crm.LeadLister
}

// App contains the application's dependencies.
type App struct {
	cfg            *config.Config
	logger         *zap.Logger
	registry       *prometheus.Registry
	recorder       *metrics.Recorder
	limiter        *ratelimit.Limiter
	leads          leadStore
	pgStore        *pgstore.LeadStore
	synchronizer   *crm.Synchronizer
	publisher      intake.Publisher
	gcpPublisher   *gcppublisher.Publisher
	service        *intake.Service
	apiServer      *api.Server
	tracerProvider *sdktrace.TracerProvider
	closeOnce      sync.Once
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	// Only non-sensitive fields are logged.
	logger.Info("creating application",
		zap.String("environment", cfg.Environment),
		zap.Int("server_port", cfg.Server.Port),
		zap.String("email_provider", cfg.Email.Provider),
	)
	return &App{cfg: cfg, logger: logger}, nil
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	if err := app.build(ctx); err != nil {
		app.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	var err error
	a.tracerProvider, err = telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: a.cfg.Application.ServiceName,
		Version:     a.cfg.Application.Version,
		SampleRatio: a.cfg.Application.TraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.recorder, err = metrics.NewRecorder(a.registry)
	if err != nil {
		return fmt.Errorf("metrics init failed: %w", err)
	}

	a.logger.Info("building application dependencies")
	if err := a.setupLeadStore(ctx); err != nil {
		return err
	}
	if err := a.setupLimiter(ctx); err != nil {
		return err
	}
	if err := a.setupSynchronizer(); err != nil {
		return err
	}
	if err := a.setupPublisher(ctx); err != nil {
		return err
	}
	notifier, err := a.setupNotifier()
	if err != nil {
		return err
	}

	validator, err := validation.New(sanitize.New())
	if err != nil {
		return fmt.Errorf("validator init failed: %w", err)
	}
	topic := a.cfg.PubSub.TopicName
	if topic == "" {
		topic = defaultEventTopic
	}
	a.service, err = intake.NewService(intake.Deps{
		Validator:    validator,
		Limiter:      a.limiter,
		Leads:        a.leads,
		Synchronizer: a.synchronizer,
		Notifier:     notifier,
		Publisher:    a.publisher,
		EventTopic:   topic,
		Clock:        system.New(),
		Logger:       a.logger.Named("intake"),
		Metrics:      a.recorder,
	})
	if err != nil {
		return fmt.Errorf("intake service init failed: %w", err)
	}

	a.apiServer, err = api.NewServer(
		a.service,
		api.Config{
			MaxBodyBytes:      a.cfg.Server.MaxBodyBytes,
			TrustProxyHeaders: a.cfg.Server.TrustProxyHeaders,
		},
		a.logger.Named("api"),
		api.WithMetrics(a.recorder, a.registry),
		api.WithReadinessCheck("store", a.leads.Ping),
		api.WithReadinessCheck("rate_limit", a.limiter.Init),
	)
	if err != nil {
		return fmt.Errorf("api server init failed: %w", err)
	}
	return nil
}

func (a *App) setupLeadStore(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no DSN specified for database, using in-memory lead store")
		a.leads = memorystorage.NewLeadStore(uuid.New(), system.New())
		return nil
	}
	store, err := pgstore.NewLeadStore(ctx, pgstore.LeadStoreConfig{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: a.cfg.DB.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("lead store init failed: %w", err)
	}
	a.pgStore = store
	a.leads = store
	if a.cfg.DB.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("lead schema migration failed: %w", err)
		}
		a.logger.Info("lead schema ensured", zap.String("table", a.cfg.DB.Table))
	}
	a.logger.Info("lead store initialized", zap.String("table", a.cfg.DB.Table))
	return nil
}

func (a *App) setupLimiter(ctx context.Context) error {
	a.limiter = ratelimit.New(ratelimit.Config{
		Production: a.cfg.IsProduction(),
		RedisURL:   a.cfg.RateLimit.RedisURL,
		Limit:      a.cfg.RateLimit.Limit,
		Window:     a.cfg.RateLimitWindow(),
		Prefix:     a.cfg.RateLimit.Prefix,
		Timeout:    time.Duration(a.cfg.RateLimit.TimeoutMs) * time.Millisecond,
	},
		ratelimit.WithLogger(a.logger.Named("ratelimit")),
		ratelimit.WithMetrics(a.recorder),
	)
	if err := a.limiter.Init(ctx); err != nil {
		return fmt.Errorf("rate limiter init failed: %w", err)
	}
	a.logger.Info("rate limiter initialized",
		zap.String("backend", a.limiter.BackendName()),
		zap.Int("limit", a.cfg.RateLimit.Limit),
		zap.Duration("window", a.cfg.RateLimitWindow()),
	)
	return nil
}

func (a *App) setupSynchronizer() error {
	if a.cfg.CRM.Token == "" {
		a.logger.Warn("no CRM token configured, every lead will be marked needs_sync")
	}
	client := hubspot.New(hubspot.Config{
		BaseURL: a.cfg.CRM.BaseURL,
		Token:   a.cfg.CRM.Token,
		Timeout: time.Duration(a.cfg.CRM.TimeoutSeconds) * time.Second,

		RequestsPerSecond: a.cfg.CRM.RequestsPerSecond,
		Burst:             a.cfg.CRM.Burst,
	}, nil)
	var err error
	a.synchronizer, err = crm.NewSynchronizer(client, a.leads,
		crm.WithLogger(a.logger.Named("crm")),
		crm.WithMetrics(a.recorder),
	)
	if err != nil {
		return fmt.Errorf("crm synchronizer init failed: %w", err)
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		a.publisher = memorypublisher.New()
		return nil
	}
	pub, err := gcppublisher.New(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.gcpPublisher = pub
	a.publisher = pub
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

func (a *App) setupNotifier() (*notify.Dispatcher, error) {
	sender, err := notify.NewSender(notify.SenderConfig{
		Provider: a.cfg.Email.Provider,
		APIKey:   a.cfg.Email.APIKey,
		BaseURL:  a.cfg.Email.BaseURL,
		Timeout:  time.Duration(a.cfg.Email.TimeoutSeconds) * time.Second,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("email sender init failed: %w", err)
	}
	if sender == nil {
		a.logger.Info("email notifications disabled")
	} else {
		a.logger.Info("email notifications enabled", zap.String("provider", sender.Name()))
	}
	return notify.NewDispatcher(sender, notify.Config{
		FromAddress:  a.cfg.Email.FromAddress,
		OwnerAddress: a.cfg.Email.OwnerAddress,
		SiteName:     a.cfg.Email.SiteName,
		SendThankYou: a.cfg.Email.SendThankYou,
	}, a.logger.Named("notify"), a.recorder), nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP until ctx is canceled or SIGINT/SIGTERM arrives, then
// shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       a.cfg.ReadTimeout(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	runErr := g.Wait()
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	a.Close(closeCtx)
	return runErr
}

// Reconcile runs one out-of-band CRM reconciliation pass.
func (a *App) Reconcile(ctx context.Context) (crm.Report, error) {
	reconciler, err := crm.NewReconciler(a.leads, a.synchronizer, crm.ReconcilerConfig{
		BatchSize:  a.cfg.Reconcile.BatchSize,
		Workers:    a.cfg.Reconcile.Workers,
		StaleAfter: a.cfg.StaleAfter(),
	}, a.logger.Named("reconcile"))
	if err != nil {
		return crm.Report{}, fmt.Errorf("reconciler init failed: %w", err)
	}
	report, err := reconciler.Run(ctx)
	if err != nil {
		return report, fmt.Errorf("reconcile: %w", err)
	}
	return report, nil
}

// Close releases every dependency. It is safe to call more than once.
func (a *App) Close(ctx context.Context) {
	a.closeOnce.Do(func() {
		a.closeInfrastructure()
		a.closeObservability(ctx)
		a.logger.Info("shutdown complete")
	})
}

func (a *App) closeInfrastructure() {
	if a.limiter != nil {
		if err := a.limiter.Close(); err != nil {
			a.logger.Warn("rate limiter close failed", zap.Error(err))
		}
	}
	if a.gcpPublisher != nil {
		if err := a.gcpPublisher.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	// Sync on stderr/stdout returns EINVAL on some platforms.
	_ = a.logger.Sync()
}
