package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	httptransport "github.com/ephc-connect/attendance-service/internal/api/http"
	"github.com/ephc-connect/attendance-service/internal/api/http/handlers"
	"github.com/ephc-connect/attendance-service/internal/auth"
	"github.com/ephc-connect/attendance-service/internal/biometric"
	"github.com/ephc-connect/attendance-service/internal/config"
	"github.com/ephc-connect/attendance-service/internal/events"
	"github.com/ephc-connect/attendance-service/internal/notification"
	"github.com/ephc-connect/attendance-service/internal/observability"
	"github.com/ephc-connect/attendance-service/internal/persistence"
	"github.com/ephc-connect/attendance-service/internal/realtime"
	"github.com/ephc-connect/attendance-service/internal/repository"
	"github.com/ephc-connect/attendance-service/internal/service"
	"github.com/ephc-connect/attendance-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Name)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	pool := pg.PoolHandle()
	staffRepo := repository.NewStaffRepository(pool)
	facilityRepo := repository.NewFacilityRepository(pool)
	attendanceRepo := repository.NewAttendanceRepository(pool)
	alertRepo := repository.NewAlertRepository(pool)
	escalationRepo := repository.NewEscalationRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()
	publisher := realtime.NewRedisPublisher(redis.Client, cfg.Notification, logger)

	alertService := service.NewAlertService(service.AlertDependencies{
		AlertRepo:      alertRepo,
		AttendanceRepo: attendanceRepo,
		StaffRepo:      staffRepo,
		Directory:      service.NewEscalationDirectory(escalationRepo, logger),
		Dispatcher:     dispatcher,
		Policy:         cfg.Policy,
		MaxRetries:     cfg.Notification.MaxDispatchRetries,
		Logger:         logger,
		Metrics:        metrics,
	})

	attendanceService := service.NewAttendanceService(service.AttendanceDependencies{
		AttendanceRepo: attendanceRepo,
		StaffRepo:      staffRepo,
		FacilityRepo:   facilityRepo,
		Verifier:       biometric.NewVerifier(),
		Limiter:        biometric.NewRedisLimiter(redis.Client, cfg.Policy.MaxVerifyAttempts, cfg.Policy.VerifyWindow()),
		Alerts:         alertService,
		Dispatcher:     dispatcher,
		Policy:         cfg.Policy,
		Logger:         logger,
		Metrics:        metrics,
	})

	statsService := service.NewStatsService(attendanceRepo, alertRepo, staffRepo, facilityRepo)

	notifyDispatcher := notification.NewDispatcher(
		alertRepo,
		notification.NewSMSGateway(cfg.Gateways, logger),
		notification.NewEmailGateway(cfg.Gateways, logger),
		publisher,
		cfg.Notification,
		logger,
		metrics,
	)

	dispatchWorker := worker.NewDispatchWorker(alertRepo, notifyDispatcher, publisher, logger, 256)
	dispatchWorker.Register(dispatcher)
	dispatchWorker.Start(ctx, 4)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens, staffRepo)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(tokens, staffRepo),
		Attendance:     handlers.NewAttendanceHandler(attendanceService),
		Alerts:         handlers.NewAlertsHandler(alertService),
		Stats:          handlers.NewStatsHandler(statsService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	dispatchWorker.Stop()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
