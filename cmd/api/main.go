package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/waylio/waylio-platform/internal/api/router"
	"github.com/waylio/waylio-platform/internal/app/bootstrap"
	"github.com/waylio/waylio-platform/internal/appointments"
	"github.com/waylio/waylio-platform/internal/audit"
	appconfig "github.com/waylio/waylio-platform/internal/config"
	"github.com/waylio/waylio-platform/internal/identity"
	"github.com/waylio/waylio-platform/internal/notify"
	"github.com/waylio/waylio-platform/internal/observability/metrics"
	"github.com/waylio/waylio-platform/internal/queue"
	"github.com/waylio/waylio-platform/internal/realtime"
	appointmentworker "github.com/waylio/waylio-platform/internal/worker/appointments"
	"github.com/waylio/waylio-platform/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	loc, _ := cfg.Location()

	logger.Info("starting waylio API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"timezone", loc.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := bootstrap.BuildPostgres(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	tokens, err := identity.NewTokens(identity.TokenConfig{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.JWTExpiresIn,
		RefreshTTL:    cfg.JWTRefreshIn,
	})
	if err != nil {
		logger.Error("failed to configure tokens", "error", err)
		os.Exit(1)
	}

	store := setupStorage(pg, redisClient, cfg, logger)

	// Realtime
	hub := realtime.NewHub(metrics.NewRealtimeMetrics(prometheus.DefaultRegisterer), logger)
	var emitter appointments.EventEmitter = hub
	if redisClient != nil && cfg.RealtimeRelayEnabled {
		relay := realtime.NewRedisRelay(redisClient, hub, logger)
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("realtime relay stopped, events now reach local clients only", "error", err)
			}
		}()
		emitter = relay
	}

	// Notifications
	templates := notify.NewTemplateStore()
	dispatcher := notify.NewDispatcher(templates, store.logs,
		bootstrap.BuildEmailSender(ctx, cfg, logger),
		notify.NewLogSMSSender(logger),
		notify.NewLogPushSender(logger),
		logger,
	).WithMetrics(metrics.NewNotificationMetrics(prometheus.DefaultRegisterer)).
		WithTimeout(cfg.NotifyTimeout)

	// Services
	identitySvc := identity.NewService(store.users, tokens, logger).WithNotifier(dispatcher, cfg.LoginURL)
	apptSvc := appointments.NewService(store.appointments, store.queue, identitySvc, emitter, appointments.Config{
		Location:          loc,
		MinutesPerPatient: cfg.QueueMinutesPerPatient,
	}, logger).
		WithNotifier(dispatcher).
		WithMetrics(metrics.NewAppointmentMetrics(prometheus.DefaultRegisterer))

	var auditHandler *audit.Handler
	if store.audit != nil {
		identitySvc = identitySvc.WithAuditor(store.audit)
		apptSvc = apptSvc.WithAuditor(store.audit)
		auditHandler = audit.NewHandler(store.audit, logger)
	}

	if cfg.BootstrapAdminEmail != "" {
		if err := identitySvc.EnsureAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword); err != nil {
			logger.Error("failed to bootstrap admin", "error", err)
			os.Exit(1)
		}
	}

	scheduler, err := setupJobs(cfg, loc, apptSvc, identitySvc, dispatcher, logger)
	if err != nil {
		logger.Error("failed to schedule jobs", "error", err)
		os.Exit(1)
	}
	scheduler.Start()

	r := router.New(&router.Config{
		Logger:              logger,
		Tokens:              tokens,
		IdentityHandler:     identity.NewHandler(identitySvc, logger),
		AppointmentsHandler: appointments.NewHandler(apptSvc, logger),
		NotifyHandler:       notify.NewHandler(templates, store.logs, dispatcher, logger),
		AuditHandler:        auditHandler,
		RealtimeHandler:     realtime.NewHandler(hub, tokens, cfg.CORSAllowedOrigins, logger),
		MetricsHandler:      promhttp.Handler(),
		HealthChecks:        store.checks,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitRPS:        cfg.RateLimitRPS,
		RateLimitBurst:      cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	scheduler.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		logger.Warn("pending notifications abandoned", "error", err)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

type storage struct {
	users        identity.Repository
	appointments appointments.Repository
	logs         notify.LogStore
	queue        queue.Store
	// audit is nil without a database.
	audit  *audit.Service
	checks map[string]router.HealthCheck
}

// setupStorage picks Postgres and Redis backed stores when available and
// in-memory ones otherwise.
func setupStorage(pg *bootstrap.Postgres, redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) storage {
	s := storage{
		users:        identity.NewMemoryRepository(),
		appointments: appointments.NewMemoryRepository(),
		logs:         notify.NewMemoryLogStore(),
		queue:        queue.NewMemoryStore(),
		checks:       map[string]router.HealthCheck{},
	}
	if pg != nil {
		s.users = identity.NewPostgresRepository(pg.Pool)
		s.appointments = appointments.NewPostgresRepository(pg.Pool)
		s.logs = notify.NewPostgresLogStore(pg.Pool)
		s.audit = audit.NewService(pg.SQL)
		s.checks["database"] = pg.Pool.Ping
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
	}
	if redisClient != nil {
		s.queue = queue.NewRedisStore(redisClient, cfg.QueueScopeTTL)
		s.checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	} else {
		logger.Warn("redis not configured, queue state is process-local")
	}
	return s
}

func setupJobs(cfg *appconfig.Config, loc *time.Location, apptSvc *appointments.Service, users *identity.Service, n *notify.Dispatcher, logger *logging.Logger) (*appointmentworker.Scheduler, error) {
	scheduler := appointmentworker.NewScheduler(loc, logger)
	if cfg.ReminderEnabled {
		if err := scheduler.Add(cfg.ReminderCron, appointmentworker.NewReminder(apptSvc, users, n, logger)); err != nil {
			return nil, fmt.Errorf("REMINDER_CRON: %w", err)
		}
	}
	if cfg.NoShowSweepEnabled {
		sweeper := appointmentworker.NewNoShowSweeper(apptSvc, logger).WithGrace(cfg.NoShowGrace)
		if err := scheduler.Add(cfg.NoShowCron, sweeper); err != nil {
			return nil, fmt.Errorf("NO_SHOW_CRON: %w", err)
		}
	}
	return scheduler, nil
}
