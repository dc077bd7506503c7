package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-sla/internal/api/http"
	"github.com/spec-kit/helpdesk-sla/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-sla/internal/auth"
	"github.com/spec-kit/helpdesk-sla/internal/calendar"
	"github.com/spec-kit/helpdesk-sla/internal/config"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/observability"
	"github.com/spec-kit/helpdesk-sla/internal/persistence"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	"github.com/spec-kit/helpdesk-sla/internal/service"
	"github.com/spec-kit/helpdesk-sla/internal/sla"
	"github.com/spec-kit/helpdesk-sla/internal/worker"
)

type stores struct {
	tickets repository.TicketRepository
	configs repository.SLAConfigRepository
	ledger  repository.SLAHistoryRepository
	history repository.TicketHistoryRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	readiness := map[string]handlers.Pinger{}
	pool := pg.PoolHandle()
	if pool != nil {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pool, cfg.Postgres.MigrationsDir, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		readiness["postgres"] = pg
	}
	store, err := openStores(cfg.Postgres, pool, logger)
	if err != nil {
		logger.Fatal("failed to open stores", zap.Error(err))
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()
	var alertStream service.AlertStream
	if redis.Enabled() {
		alertStream = redis
		readiness["redis"] = redis
	}

	holidays, err := calendar.LoadHolidays(cfg.Monitor.HolidaysFile)
	if err != nil {
		logger.Fatal("failed to load holidays", zap.Error(err))
	}
	calendars := calendar.NewBuilder(cfg.Monitor.DefaultTimezone, holidays)

	dispatcher := events.NewInMemoryDispatcher()
	notificationService := service.NewNotificationService(dispatcher, alertStream, logger, cfg.Notification)
	notifier := worker.StartNotificationWorker(ctx, notificationService, cfg.Notification, metrics, logger)

	monitorService := service.NewMonitorService(service.MonitorDependencies{
		TicketRepo:           store.tickets,
		ConfigRepo:           store.configs,
		LedgerRepo:           store.ledger,
		HistoryRepo:          store.history,
		Calendars:            calendars,
		Evaluator:            sla.NewEvaluator(sla.DefaultThresholdPolicy()),
		Dedup:                sla.NewDedupSet(),
		Sink:                 notifier,
		EscalationRecipients: cfg.Notification.EscalationRecipients,
		Metrics:              metrics,
		Logger:               logger,
	})
	slaService := service.NewSLAService(service.SLADependencies{
		TicketRepo:  store.tickets,
		ConfigRepo:  store.configs,
		LedgerRepo:  store.ledger,
		HistoryRepo: store.history,
		Calendars:   calendars,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
	})

	scheduler := worker.NewSLAScheduler(monitorService, cfg.Monitor, logger)
	if err := scheduler.Start(ctx); err != nil {
		logger.Fatal("failed to start sla scheduler", zap.Error(err))
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL())

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness),
		SLA:            handlers.NewSLAHandler(slaService, scheduler),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Gatherer:       registry,
	})

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(cfg.Monitor.ShutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	scheduler.Stop()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Monitor.ShutdownTimeout)
	defer drainCancel()
	if err := notifier.Stop(drainCtx); err != nil {
		logger.Warn("notification queue not drained", zap.Error(err))
	}
	cancel()
}

// openStores picks the pgx repositories when a pool is available. Without one
// it falls back to the memory store only when that is explicitly allowed.
func openStores(cfg config.PostgresConfig, pool *pgxpool.Pool, logger *zap.Logger) (stores, error) {
	if pool != nil {
		return stores{
			tickets: repository.NewTicketRepository(pool),
			configs: repository.NewSLAConfigRepository(pool),
			ledger:  repository.NewSLAHistoryRepository(pool),
			history: repository.NewTicketHistoryRepository(pool),
		}, nil
	}
	if !cfg.AllowMemoryStore {
		return stores{}, errors.New("POSTGRES_DSN is required; set SLA_ALLOW_MEMORY_STORE=true to run on the in-memory store")
	}
	logger.Warn("using in-memory store: no tickets or SLA configurations can be created through the API, so nothing is monitored and state is lost on restart")
	mem := repository.NewMemoryStore()
	return stores{
		tickets: mem.Tickets(),
		configs: mem.SLAConfigs(),
		ledger:  mem.SLAHistory(),
		history: mem.TicketHistory(),
	}, nil
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
