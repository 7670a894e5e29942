package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/eihwaz/internal/abort"
	"github.com/starford/eihwaz/internal/service"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *service.Service, aborts *abort.Registry, notify Notifier, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, aborts, notify)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Projects.
	r.Get("/projects", h.ListProjects)
	r.Post("/projects", h.CreateProject)
	r.Get("/projects/{id}", h.GetProject)

	// Ledger.
	r.Get("/projects/{id}/nodes", h.ReadLedger)
	r.Post("/projects/{id}/nodes", h.AppendNode)
	r.Post("/projects/{id}/abort", h.AbortOperation)

	// Branches.
	r.Get("/projects/{id}/branches", h.ListBranches)
	r.Post("/projects/{id}/branches", h.CreateBranch)
	r.Post("/projects/{id}/branches/switch", h.SwitchBranch)
	r.Post("/projects/{id}/merge", h.Merge)

	// Artefact.
	r.Get("/projects/{id}/artefact", h.GetArtefact)
	r.Put("/projects/{id}/artefact", h.UpdateArtefact)
	r.Get("/projects/{id}/snapshots/{hash}", h.GetSnapshot)

	// Search over the shadow mirror.
	r.Get("/search", h.Search)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
