package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/unicore-dev/unicore-api/internal/config"
	"github.com/unicore-dev/unicore-api/internal/database"
	"github.com/unicore-dev/unicore-api/internal/handler"
	"github.com/unicore-dev/unicore-api/internal/middleware"
	"github.com/unicore-dev/unicore-api/internal/models"
	"github.com/unicore-dev/unicore-api/internal/observability"
	"github.com/unicore-dev/unicore-api/internal/repository"
	"github.com/unicore-dev/unicore-api/internal/router"
	"github.com/unicore-dev/unicore-api/internal/service"
	cloud "github.com/unicore-dev/unicore-api/pkg/cloudinary"
	"github.com/unicore-dev/unicore-api/pkg/mailer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	observability.RegisterMetrics()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.Assignment{}, &models.ReviewEvent{}, &models.Notification{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	uploader, err := cloud.New(cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create cloudinary client: %v", err)
	}

	var mail mailer.Mailer
	if cfg.SMTPConfigured() {
		smtp, err := mailer.NewSMTP(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create smtp mailer: %v", err)
		}
		mail = smtp
	} else {
		logger.Warn().Msg("smtp not configured, email delivery disabled")
		mail = mailer.NewLog(logger)
	}

	var natsConn *nats.Conn
	if cfg.NatsURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NatsURL)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, cross-node notification fanout disabled")
			natsConn = nil
		} else {
			defer natsConn.Close()
		}
	}

	runCtx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()

	validate := validator.New(validator.WithRequiredStructEnabled())

	userRepo := repository.NewUserRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	tokenRepo := repository.NewReviewTokenRepository(redisClient)

	notifier := service.NewNotificationService(notificationRepo, redisClient, "unicore", natsConn, logger)
	notifier.Start(runCtx)

	reviewService := service.NewReviewService(assignmentRepo, userRepo, tokenRepo, notifier, mail, uploader, cfg.ReviewConfirmTTL, logger)
	assignmentService := service.NewAssignmentService(assignmentRepo, uploader, validate, logger)
	dashboardService := service.NewDashboardService(assignmentRepo, notifier, redisClient, cfg.DashboardCacheTTL, validate, logger)

	confirmRate := middleware.RateLimit("review-confirm", 5, time.Minute)

	assignmentHandler := handler.NewAssignmentHandler(assignmentService, reviewService, validate, logger)
	reviewHandler := handler.NewReviewHandler(reviewService, validate, confirmRate, logger)
	dashboardHandler := handler.NewDashboardHandler(dashboardService, logger)
	notificationHandler := handler.NewNotificationHandler(notifier, logger, cfg.SSEKeepAlive)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AssignmentHandler:   assignmentHandler,
		ReviewHandler:       reviewHandler,
		DashboardHandler:    dashboardHandler,
		NotificationHandler: notificationHandler,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
		MetricsEnabled:      true,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
