package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/eihwaz/internal/abort"
	"github.com/starford/eihwaz/internal/apperr"
	"github.com/starford/eihwaz/internal/checksum"
	"github.com/starford/eihwaz/internal/gitexec"
	"github.com/starford/eihwaz/internal/models"
	"github.com/starford/eihwaz/internal/service"
)

// Handler holds API route handlers.
type Handler struct {
	svc    *service.Service
	aborts *abort.Registry
	notify Notifier
}

// Notifier receives project change notifications (implemented by the SSE
// broker). May be nil.
type Notifier interface {
	PublishProjectEvent(kind, projectID, detail string)
}

// NewHandler creates a new Handler.
func NewHandler(svc *service.Service, aborts *abort.Registry, notify Notifier) *Handler {
	return &Handler{svc: svc, aborts: aborts, notify: notify}
}

func (h *Handler) publish(kind, projectID, detail string) {
	if h.notify != nil {
		h.notify.PublishProjectEvent(kind, projectID, detail)
	}
}

// writeError maps domain failures to HTTP statuses.
func writeError(w http.ResponseWriter, err error, logCtx ...any) {
	var cmdErr *gitexec.CommandError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("already exists"))
	case errors.Is(err, apperr.ErrInvalidState):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.As(err, &cmdErr):
		slog.Error("git command failed", append(logCtx, slog.String("error", err.Error()))...)
		writeJSON(w, http.StatusBadGateway, errorBody("version control command failed"))
	default:
		slog.Error("internal error", append(logCtx, slog.String("error", err.Error()))...)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{ Validate() error }) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if err := dst.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	return true
}

// CreateProject handles POST /projects.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if !decode(w, r, &req) {
		return
	}
	meta, err := h.svc.CreateProject(r.Context(), req.ID, req.Name)
	if err != nil {
		writeError(w, err, slog.String("project", req.ID))
		return
	}
	h.publish("project.created", meta.ID, "")
	writeJSON(w, http.StatusCreated, meta)
}

// ListProjects handles GET /projects.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	metas, err := h.svc.ListProjects(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if metas == nil {
		metas = []models.ProjectMeta{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": metas})
}

// GetProject handles GET /projects/{id}.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	meta, err := h.svc.GetProject(r.Context(), id)
	if err != nil {
		writeError(w, err, slog.String("project", id))
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// ReadLedger handles GET /projects/{id}/nodes?ref=.
func (h *Handler) ReadLedger(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ref := r.URL.Query().Get("ref")
	nodes, err := h.svc.ReadLedger(r.Context(), id, ref)
	if err != nil {
		writeError(w, err, slog.String("project", id), slog.String("ref", ref))
		return
	}
	writeJSON(w, http.StatusOK, LedgerResponse{Nodes: nodes, Total: len(nodes)})
}

// AppendNode handles POST /projects/{id}/nodes. The in-flight operation is
// registered for cancellation under its project/branch key; a later request
// to the same key replaces (and cancels) this one.
func (h *Handler) AppendNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req AppendNodeRequest
	if !decode(w, r, &req) {
		return
	}

	ctx, release := h.aborts.Register(r.Context(), abortKey(id, req.Branch))
	defer release()

	node, err := h.svc.AppendNode(ctx, id, models.NewMessageNode(req.Role, req.Content), req.Branch)
	if err != nil {
		writeError(w, err, slog.String("project", id), slog.String("branch", req.Branch))
		return
	}
	h.publish("node.appended", id, node.ID)
	writeJSON(w, http.StatusCreated, node)
}

// AbortOperation handles POST /projects/{id}/abort.
func (h *Handler) AbortOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	branch := r.URL.Query().Get("branch")
	cancelled := h.aborts.Cancel(abortKey(id, branch))
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func abortKey(projectID, branch string) string {
	return projectID + "/" + branch
}

// ListBranches handles GET /projects/{id}/branches.
func (h *Handler) ListBranches(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	branches, err := h.svc.ListBranches(r.Context(), id)
	if err != nil {
		writeError(w, err, slog.String("project", id))
		return
	}
	writeJSON(w, http.StatusOK, BranchListResponse{Branches: branches})
}

// CreateBranch handles POST /projects/{id}/branches.
func (h *Handler) CreateBranch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req CreateBranchRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.CreateBranch(r.Context(), id, req.Name, req.From); err != nil {
		writeError(w, err, slog.String("project", id), slog.String("branch", req.Name))
		return
	}
	h.publish("branch.created", id, req.Name)
	writeJSON(w, http.StatusCreated, map[string]string{"name": req.Name})
}

// SwitchBranch handles POST /projects/{id}/branches/switch.
func (h *Handler) SwitchBranch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req SwitchBranchRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.SwitchBranch(r.Context(), id, req.Name); err != nil {
		writeError(w, err, slog.String("project", id), slog.String("branch", req.Name))
		return
	}
	h.publish("branch.switched", id, req.Name)
	writeJSON(w, http.StatusOK, map[string]string{"name": req.Name})
}

// Merge handles POST /projects/{id}/merge.
func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req MergeRequest
	if !decode(w, r, &req) {
		return
	}
	node, err := h.svc.MergeBranch(r.Context(), id, req.Source, req.Summary)
	if err != nil {
		writeError(w, err, slog.String("project", id), slog.String("source", req.Source))
		return
	}
	h.publish("branch.merged", id, req.Source)
	writeJSON(w, http.StatusCreated, node)
}

// GetArtefact handles GET /projects/{id}/artefact?ref=.
func (h *Handler) GetArtefact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ref := r.URL.Query().Get("ref")
	content, err := h.svc.GetArtefactAt(r.Context(), id, ref)
	if err != nil {
		writeError(w, err, slog.String("project", id), slog.String("ref", ref))
		return
	}
	writeJSON(w, http.StatusOK, ArtefactResponse{
		Content:  content,
		Checksum: checksum.Sum([]byte(content)),
	})
}

// UpdateArtefact handles PUT /projects/{id}/artefact with optional
// If-Match optimistic concurrency on the live content checksum.
func (h *Handler) UpdateArtefact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req UpdateArtefactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	if ifMatch := r.Header.Get("If-Match"); ifMatch != "" {
		current, err := h.svc.GetArtefact(r.Context(), id)
		if err != nil {
			writeError(w, err, slog.String("project", id))
			return
		}
		if ifMatch != checksum.Sum([]byte(current)) {
			writeJSON(w, http.StatusConflict, errorBody("artefact changed since last read"))
			return
		}
	}

	node, err := h.svc.UpdateArtefact(r.Context(), id, req.Content, req.Branch)
	if err != nil {
		writeError(w, err, slog.String("project", id), slog.String("branch", req.Branch))
		return
	}
	h.publish("artefact.updated", id, node.ID)
	writeJSON(w, http.StatusOK, node)
}

// GetSnapshot handles GET /projects/{id}/snapshots/{hash}.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	hash := chi.URLParam(r, "hash")
	content, err := h.svc.ResolveSnapshot(r.Context(), id, hash)
	if err != nil {
		writeError(w, err, slog.String("project", id), slog.String("hash", hash))
		return
	}
	writeJSON(w, http.StatusOK, ArtefactResponse{
		Content:  content,
		Checksum: checksum.Sum([]byte(content)),
	})
}

// Search handles GET /search?q=&limit=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("q is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, err, slog.String("query", q))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
