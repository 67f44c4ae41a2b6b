package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-access-api/internal/config"
	"github.com/noah-isme/gema-access-api/internal/database"
	"github.com/noah-isme/gema-access-api/internal/handler"
	"github.com/noah-isme/gema-access-api/internal/middleware"
	"github.com/noah-isme/gema-access-api/internal/models"
	"github.com/noah-isme/gema-access-api/internal/repository"
	"github.com/noah-isme/gema-access-api/internal/router"
	"github.com/noah-isme/gema-access-api/internal/service"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if !cfg.IsProduction() {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	redisClient, err := database.ConnectRedis(context.Background(), cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to nats")
	}
	if natsConn != nil {
		defer natsConn.Drain()
	} else {
		logger.Warn().Msg("nats url not configured, access events will not be published")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	studentRepo := repository.NewStudentRepository(db)
	planRepo := repository.NewPlanRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	accessEventRepo := repository.NewAccessEventRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	activityService := service.NewActivityService(activityRepo, logger)
	resolver := service.NewEnrollmentResolver(enrollmentRepo, activityService, logger)
	counter := service.NewQuotaCounter(accessEventRepo)

	entitlementService := service.NewEntitlementService(service.EntitlementDependencies{
		Students:    studentRepo,
		Enrollments: enrollmentRepo,
		Events:      accessEventRepo,
		Transactor:  repository.NewTransactor(db),
		Resolver:    resolver,
		Counter:     counter,
		Publisher:   service.NewAccessPublisher(natsConn, cfg.NATSSubject, logger),
		Cache:       redisClient,
	}, logger)

	reportService := service.NewReportService(service.ReportDependencies{
		Students:    studentRepo,
		Plans:       planRepo,
		Enrollments: enrollmentRepo,
		Events:      accessEventRepo,
		Resolver:    resolver,
		Counter:     counter,
		Cache:       redisClient,
		CacheTTL:    cfg.ReportCacheTTL,
	}, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AccessHandler:      handler.NewAccessHandler(entitlementService, validate, logger),
		EntitlementHandler: handler.NewEntitlementHandler(entitlementService, logger),
		ReportHandler:      handler.NewReportHandler(reportService, logger),
		ActivityHandler:    handler.NewActivityHandler(activityService, logger),
		HealthProbes:       healthProbes(db, redisClient, natsConn),
		JWTMiddleware:      middleware.JWTProtected(cfg.JWTSecret),
		CheckInLimiter:     middleware.RateLimit("check-in", cfg.AccessRateLimit, cfg.AccessRateWindow),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)
}

func healthProbes(db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn) map[string]handler.HealthProbe {
	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	}
	if natsConn != nil {
		probes["nats"] = func(context.Context) error {
			if !natsConn.IsConnected() {
				return nats.ErrConnectionClosed
			}
			return nil
		}
	}
	return probes
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
