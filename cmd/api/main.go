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
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/bhasha-ai/grader-api/internal/config"
	"github.com/bhasha-ai/grader-api/internal/database"
	"github.com/bhasha-ai/grader-api/internal/grading"
	"github.com/bhasha-ai/grader-api/internal/handler"
	"github.com/bhasha-ai/grader-api/internal/middleware"
	"github.com/bhasha-ai/grader-api/internal/models"
	"github.com/bhasha-ai/grader-api/internal/repository"
	"github.com/bhasha-ai/grader-api/internal/router"
	"github.com/bhasha-ai/grader-api/internal/service"
	"github.com/bhasha-ai/grader-api/pkg/ai"
	"github.com/bhasha-ai/grader-api/pkg/ocr"
	"github.com/bhasha-ai/grader-api/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.AnswerKey{}, &models.AnswerKeyEntry{}, &models.Submission{}, &models.AnswerResult{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = nats.Connect(cfg.NATSURL, nats.Name(cfg.AppName))
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	sheetStore, err := storage.New(storage.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create sheet store: %v", err)
	}

	provider, err := buildProvider(runCtx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to create ai provider: %v", err)
	}

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create ocr engine: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	answerKeyRepo := repository.NewAnswerKeyRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)

	broker := grading.NewProgressBroker()
	orchestrator := grading.NewOrchestrator(submissionRepo, answerKeyRepo, sheetStore, engine, provider, provider, broker, natsConn, cfg.Grading, logger)
	orchestrator.Start(runCtx)

	answerKeyService := service.NewAnswerKeyService(answerKeyRepo, validate, logger)
	submissionService := service.NewSubmissionService(submissionRepo, answerKeyRepo, validate, sheetStore, orchestrator, redisClient, cfg.ResultCacheTTL, logger)

	answerKeyHandler := handler.NewAnswerKeyHandler(answerKeyService, logger)
	submissionHandler := handler.NewSubmissionHandler(submissionService, broker, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AnswerKeyHandler:  answerKeyHandler,
		SubmissionHandler: submissionHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(runCtx, app)
}

func buildProvider(ctx context.Context, cfg config.Config, logger zerolog.Logger) (ai.Provider, error) {
	if cfg.AIProvider == "gemini" {
		return ai.NewGeminiProvider(ctx, ai.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Logger: logger,
		})
	}

	return ai.NewOpenAIProvider(ai.OpenAIConfig{
		APIKey: cfg.OpenAIAPIKey,
		Logger: logger,
	})
}

func buildEngine(cfg config.Config, logger zerolog.Logger) (ocr.Engine, error) {
	if cfg.OCREngine == "openai" {
		return ocr.NewOpenAIEngine(ocr.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Logger: logger,
		})
	}

	return ocr.NewTesseractEngine(ocr.TesseractConfig{
		Languages: cfg.TesseractLanguages,
		Logger:    logger,
	}), nil
}

func waitForShutdown(runCtx context.Context, app *fiber.App) {
	<-runCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
