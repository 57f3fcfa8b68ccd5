// Package main provides the main entry point for the Virtual Library Card service
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/virtuallibrarycard/vlc/app/handlers"
	"github.com/virtuallibrarycard/vlc/app/middleware"
	"github.com/virtuallibrarycard/vlc/app/router"
	"github.com/virtuallibrarycard/vlc/app/scheduler"
	"github.com/virtuallibrarycard/vlc/app/services"
	businessflow "github.com/virtuallibrarycard/vlc/business_flow"
	"github.com/virtuallibrarycard/vlc/config"
	_ "github.com/virtuallibrarycard/vlc/docs"
	"github.com/virtuallibrarycard/vlc/models"
	"github.com/virtuallibrarycard/vlc/repository"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	logger    zerolog.Logger
	stopFuncs []func()
}

func main() {
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info().Msg("starting virtual library card service")

	app, err := initializeApplication(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize application")
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		logger.Info().Str("address", address).Msg("server starting")

		if err := app.server.Listen(address); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-sigChan
	logger.Info().Msg("shutting down gracefully")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}

	logger.Info().Msg("server stopped")
}

// setupLogger builds the root zerolog logger according to the logging config.
// File output goes through lumberjack so log rotation never needs an external
// logrotate setup.
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var sink io.Writer
	switch cfg.Output {
	case "file":
		sink = newRotatingFileWriter(cfg)
	case "both":
		sink = zerolog.MultiLevelWriter(os.Stdout, newRotatingFileWriter(cfg))
	default:
		sink = os.Stdout
	}

	return zerolog.New(sink).Level(level).With().
		Timestamp().
		Str("service", "virtual-library-card").
		Logger()
}

func newRotatingFileWriter(cfg config.LoggingConfig) io.Writer {
	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
}

// initializeDatabase initializes the database connection with connection
// pooling and runs schema migrations.
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Place{},
		&models.Library{},
		&models.LibraryPlace{},
		&models.Patron{},
		&models.LibraryCard{},
		&models.SequenceCounter{},
		&models.BulkUploadJob{},
		&models.AuditLog{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return db, nil
}

// initializeCache initializes the redis client and verifies connectivity.
// Returns nil when caching is disabled; the flows treat a nil client as
// cache-off and go straight to the database.
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	rc := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return rc, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically
// pings redis to surface connectivity issues in the logs. The returned cancel
// function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, logger zerolog.Logger) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					logger.Warn().Err(err).Msg("redis healthcheck failed")
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeApplication wires repositories, services, flows, handlers, and
// the router together.
func initializeApplication(cfg *config.ProductionConfig, logger zerolog.Logger) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, logger))
	}

	// Repositories
	patronRepo := repository.NewPatronRepository(db)
	libraryRepo := repository.NewLibraryRepository(db)
	cardRepo := repository.NewLibraryCardRepository(db)
	placeRepo := repository.NewPlaceRepository(db)
	libraryPlaceRepo := repository.NewLibraryPlaceRepository(db)
	sequenceRepo := repository.NewSequenceRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	bulkJobRepo := repository.NewBulkUploadJobRepository(db)

	// Services
	emailProvider := services.NewSMTPEmailProvider(
		cfg.Email.Host,
		cfg.Email.Port,
		cfg.Email.Username,
		cfg.Email.Password,
		cfg.Email.FromEmail,
	)
	notificationService := services.NewNotificationService(emailProvider, logger)

	tokenService, err := services.NewTokenService(
		cfg.JWT.SecretKey,
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.VerificationTokenTTL,
		cfg.JWT.Issuer,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	var challengeStore services.ChallengeStore
	if rc != nil {
		challengeStore = services.NewRedisChallengeStore(rc, cfg.Cache.RedisPrefix, cfg.Captcha.TTL)
	} else {
		challengeStore = services.NewMemoryChallengeStore(cfg.Captcha.TTL)
	}
	captchaService, err := services.NewCaptchaService(challengeStore, cfg.Captcha.AnglePad, cfg.Captcha.ImageSizePx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize captcha service: %w", err)
	}

	censor := services.NewCensor(logger)

	// Card number generator with operator-tunable policy
	generator := businessflow.NewCardNumberGenerator(
		libraryRepo,
		cardRepo,
		sequenceRepo,
		patronRepo,
		censor,
		notificationService,
		db,
		logger,
	)
	generator.AlertThreshold = cfg.CardNumbers.AlertThreshold
	generator.Retries = cfg.CardNumbers.Retries
	generator.RandomDigitsOnly = cfg.CardNumbers.RandomDigitsOnly
	generator.BurnOnCollision = cfg.CardNumbers.BurnOnCollision

	// Flows
	libraryFlow := businessflow.NewLibraryFlow(
		libraryRepo,
		placeRepo,
		libraryPlaceRepo,
		auditRepo,
		generator,
		rc,
		&cfg.Cache,
		db,
		logger,
	)

	cardFlow := businessflow.NewLibraryCardFlow(
		cardRepo,
		patronRepo,
		libraryRepo,
		auditRepo,
		generator,
		notificationService,
		db,
		logger,
	)

	signupCaptcha := captchaService
	if !cfg.Captcha.Enabled {
		signupCaptcha = nil
	}
	signupFlow := businessflow.NewSignupFlow(
		patronRepo,
		placeRepo,
		libraryPlaceRepo,
		auditRepo,
		libraryFlow,
		cardFlow,
		tokenService,
		signupCaptcha,
		notificationService,
		cfg.Server.PublicBaseURL,
		db,
		logger,
	)

	patronAPIFlow := businessflow.NewPatronAPIFlow(
		cardRepo,
		patronRepo,
		auditRepo,
		logger,
	)

	bulkUploadFlow := businessflow.NewBulkUploadFlow(
		bulkJobRepo,
		patronRepo,
		libraryRepo,
		placeRepo,
		auditRepo,
		cardFlow,
		notificationService,
		db,
		logger,
	)
	if impl, ok := bulkUploadFlow.(*businessflow.BulkUploadFlowImpl); ok {
		impl.MaxRows = cfg.BulkUpload.MaxRows
	}

	// Handlers
	patronHandler := handlers.NewPatronHandler(signupFlow, captchaService)
	libraryHandler := handlers.NewLibraryHandler(libraryFlow, bulkUploadFlow)
	cardHandler := handlers.NewCardHandler(cardFlow)
	patronAPIHandler := handlers.NewPatronAPIHandler(patronAPIFlow)

	authMiddleware := middleware.NewAuthMiddleware(tokenService, patronRepo)

	if cfg.Scheduler.ExpiryRemindersEnabled {
		sched := scheduler.NewExpiryScheduler(
			cardRepo,
			bulkJobRepo,
			auditRepo,
			notificationService,
			logger,
			scheduler.ExpirySchedulerOptions{
				Interval:     cfg.Scheduler.Interval,
				ReminderDays: cfg.Scheduler.ReminderDays,
				StaleJobAge:  cfg.Scheduler.StaleJobAge,
			},
		)
		stopFuncs = append(stopFuncs, sched.Start(context.Background()))
	}

	appRouter := router.NewFiberRouter(
		patronHandler,
		libraryHandler,
		cardHandler,
		patronAPIHandler,
		authMiddleware,
		cfg.Server.AllowedOrigins,
	)

	fiberRouter := appRouter.(*router.FiberRouter)
	return &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		logger:    logger,
		stopFuncs: stopFuncs,
	}, nil
}
