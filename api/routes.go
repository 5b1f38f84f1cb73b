package api

import (
	"github.com/gorilla/mux"

	"github.com/recruitflow/api/internal/config"
	"github.com/recruitflow/api/internal/db"
	"github.com/recruitflow/api/internal/outbox"
	"github.com/recruitflow/api/internal/repository/sqlite"
	"github.com/recruitflow/api/internal/runner"
)

func SetupRoutes(cfg *config.Config, version, buildTime string, database *db.DB) *mux.Router {
	r := mux.NewRouter()

	// Middleware chain
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware)

	// Repository and services
	repo := sqlite.New(database, logger)
	runnerSvc := runner.New(repo, logger)
	outboxSvc := outbox.NewService(repo, logger)
	dispatcher := outbox.NewDispatcher(repo, cfg.Webhook.TargetURL, cfg.Webhook.Secret, cfg.Webhook.Timeout, logger)

	// Create handlers
	systemHandler := NewSystemHandler(database)
	authHandler := NewAuthHandler(repo, cfg.JWTSecret, cfg.TokenDuration)
	jobsHandler := NewJobsHandler(repo)
	flowHandler := NewFlowHandler(runnerSvc, outboxSvc)
	outboxHandler := NewOutboxHandler(outboxSvc, dispatcher, cfg.Webhook.CronSecret)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(version, buildTime)).Methods("GET")
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods("GET")
	r.HandleFunc("/ready", systemHandler.ReadyHandler).Methods("GET")
	r.HandleFunc("/v1/auth/bootstrap", authHandler.Bootstrap).Methods("POST")
	r.HandleFunc("/v1/auth/login", authHandler.Login).Methods("POST")

	// Public candidate-facing endpoints: the flow runner
	pub := r.PathPrefix("/public").Subrouter()
	pub.HandleFunc("/flow/resume/{token}", flowHandler.Resume).Methods("GET")
	pubJob := pub.PathPrefix("/{tenantSlug}/jobs/{publicSlug}").Subrouter()
	pubJob.HandleFunc("", jobsHandler.PublicJob).Methods("GET")
	pubJob.HandleFunc("/flow/start", flowHandler.Start).Methods("POST")
	pubJob.HandleFunc("/flow/{applicationID}/answers", flowHandler.SaveAnswers).Methods("POST")
	pubJob.HandleFunc("/flow/{applicationID}/submit", flowHandler.Submit).Methods("POST")
	pubJob.HandleFunc("/flow/{applicationID}/next/{nodeKey}", flowHandler.NextNode).Methods("GET")
	pubJob.HandleFunc("/flow/{applicationID}/magic-link", flowHandler.IssueMagicLink).Methods("POST")

	// Scheduler endpoint, gated by the shared cron secret
	r.HandleFunc("/internal/outbox/dispatch",
		CronAuthMiddleware(cfg.Webhook.CronSecret, outboxHandler.Dispatch)).Methods("POST")

	// API v1 Protected routes
	apiV1 := r.PathPrefix("/v1").Subrouter()
	apiV1.Use(JWTAuthMiddlewareWithSecret(cfg.JWTSecret))

	// Jobs endpoints
	apiV1.HandleFunc("/jobs", RequireWriteRole(jobsHandler.CreateJob)).Methods("POST")
	apiV1.HandleFunc("/jobs", jobsHandler.ListJobs).Methods("GET")
	apiV1.HandleFunc("/jobs/{id}", jobsHandler.GetJob).Methods("GET")
	apiV1.HandleFunc("/jobs/{id}", RequireWriteRole(jobsHandler.PatchJob)).Methods("PATCH")
	apiV1.HandleFunc("/jobs/{id}/flow", RequireWriteRole(jobsHandler.PublishFlow)).Methods("POST")

	// Outbox operator endpoints
	apiV1.HandleFunc("/outbox/pending", outboxHandler.ListPending).Methods("GET")
	apiV1.HandleFunc("/outbox/dispatch", RequireWriteRole(outboxHandler.Dispatch)).Methods("POST")

	return r
}
