package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/tallyfold/receiptd/internal/config"
	"github.com/tallyfold/receiptd/internal/export"
	"github.com/tallyfold/receiptd/internal/extract"
	httpserver "github.com/tallyfold/receiptd/internal/interfaces/http"
	"github.com/tallyfold/receiptd/internal/notification"
	"github.com/tallyfold/receiptd/internal/ocr"
	"github.com/tallyfold/receiptd/internal/pdf"
	"github.com/tallyfold/receiptd/internal/pipeline"
	"github.com/tallyfold/receiptd/internal/repository"
	"github.com/tallyfold/receiptd/internal/services"
	"github.com/tallyfold/receiptd/internal/storage"
	"github.com/tallyfold/receiptd/internal/worker"
	"github.com/tallyfold/receiptd/pkg/database"
	"github.com/tallyfold/receiptd/pkg/utils"
)

func main() {
	// Local development credentials; missing .env is fine.
	_ = gotenv.Load()

	configPath := os.Getenv("RECEIPTD_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting receiptd",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	// Database and migrations
	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Repositories and storage
	receiptRepo := repository.NewReceiptRepository(db.DB, logger)
	jobRepo := repository.NewJobRepository(db.DB, logger)

	fileStorage := storage.NewLocalFileStorage(cfg.Storage.BaseDir, logger)
	folderManager := storage.NewFolderManager(cfg.Storage.BaseDir, logger)

	// Extraction pipeline
	rasterizer := pdf.NewRasterizer(cfg.OCR.MaxPages, cfg.OCR.DPI, logger)

	engine, err := ocr.NewTesseractEngine(cfg.OCR.Languages, cfg.OCR.TessdataDir, logger)
	if err != nil {
		logger.Fatal("Failed to initialize OCR engine", zap.Error(err))
	}
	defer engine.Close()

	var heuristics *extract.HeuristicParser
	if cfg.Extraction.HeuristicsEnabled {
		heuristics = extract.NewHeuristicParser(cfg.Extraction.DefaultCurrency, logger)
	}
	var llm *extract.LLMExtractor
	if cfg.OpenAI.APIKey != "" {
		llm = extract.NewLLMExtractor(
			cfg.OpenAI.APIKey,
			cfg.OpenAI.Model,
			cfg.OpenAI.Temperature,
			cfg.OpenAI.MaxTokens,
			cfg.OpenAI.Timeout,
			logger,
		)
	}
	extractor := extract.NewExtractor(heuristics, llm, cfg.Extraction.ConfidenceThreshold, cfg.Extraction.DefaultCurrency, logger)

	pipe := pipeline.New(rasterizer, engine, extractor, fileStorage, folderManager, pipeline.Config{
		OCRTimeout:    cfg.OCR.Timeout,
		KeepArtifacts: cfg.Storage.KeepArtifacts,
	}, logger)

	// Optional Lark notifications
	var notifier worker.Notifier
	if larkNotifier := notification.NewLarkNotifier(notification.LarkConfig{
		AppID:         cfg.Lark.AppID,
		AppSecret:     cfg.Lark.AppSecret,
		ChatID:        cfg.Lark.ChatID,
		NotifySuccess: cfg.Lark.NotifySuccess,
	}, logger); larkNotifier != nil {
		notifier = larkNotifier
		logger.Info("Lark notifications enabled", zap.String("chat_id", cfg.Lark.ChatID))
	}

	// Background worker
	processor := worker.NewProcessor(worker.ProcessorConfig{
		PollInterval: cfg.Worker.PollInterval,
		BatchSize:    cfg.Worker.BatchSize,
		JobTimeout:   cfg.Worker.JobTimeout,
		RetryBackoff: cfg.Worker.RetryBackoff,
	}, db, receiptRepo, jobRepo, pipe, notifier, logger)

	manager := worker.NewManager(logger)
	manager.Register(processor)

	// Services and HTTP server
	receiptService := services.NewReceiptService(
		db, receiptRepo, jobRepo, fileStorage, folderManager,
		cfg.Storage.MaxUploadSize, cfg.Worker.MaxAttempts, logger,
	)
	exportService := export.NewService(receiptRepo, logger)

	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:          cfg.Server.Host,
		Port:          cfg.Server.Port,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
		MaxUploadSize: cfg.Storage.MaxUploadSize,
	}, receiptService, exportService, processor.Status, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := manager.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}

	if err := server.Start(ctx); err != nil {
		logger.Error("HTTP server failed", zap.Error(err))
	}

	manager.StopAll()
	logger.Info("Server exited successfully")
}
