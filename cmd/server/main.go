package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"qc-inspector/api/rest/routes"
	"qc-inspector/config"
	"qc-inspector/core/engine"
	"qc-inspector/core/inference"
	"qc-inspector/core/logging"
	"qc-inspector/core/models"
	"qc-inspector/core/orchestrator"
	"qc-inspector/core/registry"
	"qc-inspector/core/repository"
	"qc-inspector/core/scheduler"
	"qc-inspector/providers/gemini"
	"qc-inspector/storage"

	"github.com/gorilla/mux"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	modelTable, err := config.LoadModelTable(cfg.ModelConfigPath)
	if err != nil {
		logger.Fatalw("failed to load model config", "path", cfg.ModelConfigPath, "error", err)
	}

	// Initialize database
	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()
	logger.Infow("database connected")

	imageRepo := repository.NewImageRepository(db)
	if imported, err := imageRepo.MigrateCSV(filepath.Join(cfg.DataDir, "metadata.csv")); err != nil {
		logger.Warnw("csv migration failed", "error", err)
	} else if imported > 0 {
		logger.Infow("migrated legacy metadata", "records", imported)
	}

	// Initialize model registry and inference router
	reg, err := registry.New(cfg.ModelsDir, logger)
	if err != nil {
		logger.Fatalw("failed to initialize model registry", "error", err)
	}
	router := inference.New(reg, logger)

	// Initialize storage
	imageStore := storage.NewImageStore(cfg.DataDir, imageRepo)
	corpus := storage.NewFileCorpus(imageStore.OKDir())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mirror orchestrator.Mirror
	if cfg.MirrorBucket != "" {
		s3Mirror, err := storage.NewS3Mirror(ctx, cfg.MirrorBucket, logger)
		if err != nil {
			logger.Warnw("artifact mirror disabled", "error", err)
		} else {
			mirror = s3Mirror
			logger.Infow("artifact mirror enabled", "bucket", cfg.MirrorBucket)
		}
	}

	// Initialize training orchestrator
	guard := orchestrator.NewTrainingGuard()
	orch := orchestrator.New(
		corpus,
		reg,
		router,
		guard,
		&engine.OpenVINOExporter{},
		mirror,
		modelTable,
		cfg.DataDir,
		logger,
	)

	// Initialize retraining scheduler
	retrain := scheduler.New(orch, corpus, models.ModelPatchcore, cfg.RetrainHour, cfg.RetrainMinute, logger)
	go retrain.Start(ctx)
	defer retrain.Stop()

	// Setup routes
	vlm := gemini.NewClient(cfg.GeminiAPIKey)
	r := mux.NewRouter()
	routes.SetupRoutes(r, orch, reg, router, imageStore, imageRepo, vlm, logger)

	// Health check endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// Start server
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		logger.Infow("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("server failed to start", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infow("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalw("server forced to shutdown", "error", err)
	}
	logger.Infow("server exited")
}
