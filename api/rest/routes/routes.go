package routes

import (
	"qc-inspector/api/rest/handlers"
	"qc-inspector/core/inference"
	"qc-inspector/core/orchestrator"
	"qc-inspector/core/registry"
	"qc-inspector/core/repository"
	"qc-inspector/providers/gemini"
	"qc-inspector/storage"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// SetupRoutes configures all API routes
func SetupRoutes(
	r *mux.Router,
	orch *orchestrator.Orchestrator,
	reg *registry.Registry,
	router *inference.Router,
	store *storage.ImageStore,
	repo *repository.ImageRepository,
	vlm *gemini.Client,
	log *zap.SugaredLogger,
) {
	aiHandler := handlers.NewAIHandler(orch, reg, router, log)
	imageHandler := handlers.NewImageHandler(store, repo, log)
	bomHandler := handlers.NewBOMHandler(vlm, log)

	// Capture station endpoints
	r.HandleFunc("/capture", imageHandler.Capture).Methods("POST")
	r.HandleFunc("/label", imageHandler.Label).Methods("POST")
	r.HandleFunc("/gallery", imageHandler.Gallery).Methods("GET")
	r.HandleFunc("/image", imageHandler.ServeImage).Methods("GET")
	r.HandleFunc("/image", imageHandler.DeleteImage).Methods("DELETE")
	r.HandleFunc("/stats", imageHandler.Stats).Methods("GET")
	r.HandleFunc("/export", imageHandler.ExportCSV).Methods("GET")

	// AI endpoints
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/daily-stats", imageHandler.DailyStats).Methods("GET")
	api.HandleFunc("/train", aiHandler.Train).Methods("POST")
	api.HandleFunc("/training-status", aiHandler.TrainingStatus).Methods("GET")
	api.HandleFunc("/predict", aiHandler.Predict).Methods("POST")
	api.HandleFunc("/models", aiHandler.AvailableModels).Methods("GET")
	api.HandleFunc("/models/{type}/versions", aiHandler.ListVersions).Methods("GET")
	api.HandleFunc("/models/{type}/rollback", aiHandler.Rollback).Methods("POST")
	api.HandleFunc("/analyze-spec", bomHandler.AnalyzeSpec).Methods("POST")
}
