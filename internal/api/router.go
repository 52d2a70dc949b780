package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	apimiddleware "github.com/phrazzld/easel-api/internal/api/middleware"
	"github.com/phrazzld/easel-api/internal/auth"
	"github.com/phrazzld/easel-api/internal/service"
)

// NewRouter builds the HTTP surface over the job service. Everything under
// /api requires a bearer token; the health check is public.
func NewRouter(svc *service.JobService, tokens auth.TokenService, log *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.TraceMiddleware)

	configurationHandler := NewConfigurationHandler(svc, log)
	jobHandler := NewJobHandler(svc, log)
	imageHandler := NewImageHandler(svc, log)
	maintenanceHandler := NewMaintenanceHandler(svc, log)
	authMiddleware := apimiddleware.NewAuthMiddleware(tokens)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		// Configuration endpoints
		r.Post("/configurations", configurationHandler.Create)
		r.Get("/configurations", configurationHandler.List)
		r.Get("/configurations/{id}", configurationHandler.Get)
		r.Put("/configurations/{id}", configurationHandler.Update)
		r.Delete("/configurations/{id}", configurationHandler.Delete)

		// Job control and query endpoints
		r.Post("/jobs/start", jobHandler.Start)
		r.Post("/jobs/stop", jobHandler.Stop)
		r.Post("/jobs/force-stop", jobHandler.ForceStop)
		r.Get("/jobs/status", jobHandler.Status)
		r.Get("/jobs/history", jobHandler.History)
		r.Get("/jobs/statistics", jobHandler.Statistics)
		r.Post("/jobs/rerun", jobHandler.BulkRerun)
		r.Post("/jobs/{id}/rerun", jobHandler.Rerun)
		r.Get("/jobs/{id}", jobHandler.Get)
		r.Delete("/jobs/{id}", jobHandler.Delete)

		// Image management endpoints
		r.Patch("/images/{id}/qc", imageHandler.UpdateQC)
		r.Post("/images/{id}/approve", imageHandler.Approve)
		r.Delete("/images/{id}", imageHandler.Delete)
		r.Post("/images/delete", imageHandler.BulkDelete)

		// Maintenance endpoints
		r.Post("/maintenance/migrate", maintenanceHandler.Migrate)
		r.Post("/maintenance/backup", maintenanceHandler.Backup)
		r.Get("/maintenance/backups", maintenanceHandler.ListBackups)
		r.Post("/maintenance/restore", maintenanceHandler.Restore)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
