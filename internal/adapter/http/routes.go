package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Workflows
		r.Get("/workflows", h.ListWorkflows)
		r.Post("/workflows", h.RegisterWorkflow)
		r.Get("/workflows/{key}", h.GetWorkflow)
		r.Get("/workflows/{key}/nodes", h.ListWorkflowNodes)

		// Runs
		r.Get("/runs", h.ListRuns)
		r.Get("/runs/{runID}", h.GetRun)
		r.Get("/runs/{runID}/transcript", h.GetTranscript)
		r.Get("/runs/{runID}/nodes", h.ListRunNodes)
		r.Get("/runs/{runID}/nodes/{nodeID}/preview", h.GetNodePreview)

		// Event ingestion (for producers without a feed connection)
		r.Post("/runs/{runID}/events", h.IngestEvents)
		r.Post("/runs/{runID}/reset", h.ResetRun)
	})
}
