package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/GoCodeAlone/tickler/assist"
	"github.com/GoCodeAlone/tickler/notify"
	"github.com/GoCodeAlone/tickler/remote"
	"github.com/GoCodeAlone/tickler/task"
)

// CompletionLister is implemented by stores that keep a completion log.
type CompletionLister interface {
	Completions(ctx context.Context, owner, id string) ([]time.Time, error)
}

// Handlers bundles all REST API handler dependencies. Every route is scoped
// to the owner placed in the request context by the auth middleware.
type Handlers struct {
	Store     remote.Gateway
	Assistant assist.Generator // nil disables /api/assist
	Limiter   *Limiter
	Bus       notify.Bus // receives a changed event after every write; may be nil
	Logger    *slog.Logger
	Version   string
	StartAt   int64 // unix timestamp of server start
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	if h.Logger == nil {
		h.Logger = slog.New(slog.DiscardHandler)
	}
	mux.HandleFunc("GET /api/tasks", h.withOwner(h.listTasks))
	mux.HandleFunc("POST /api/tasks", h.withOwner(h.createTask))
	mux.HandleFunc("PUT /api/tasks/positions", h.withOwner(h.upsertPositions))
	mux.HandleFunc("PATCH /api/tasks/{id}", h.withOwner(h.updateTask))
	mux.HandleFunc("DELETE /api/tasks/{id}", h.withOwner(h.deleteTask))
	mux.HandleFunc("POST /api/tasks/{id}/log", h.withOwner(h.logCompletion))
	mux.HandleFunc("GET /api/tasks/{id}/log", h.withOwner(h.listCompletions))

	mux.HandleFunc("GET /api/lists", h.withOwner(h.listLists))
	mux.HandleFunc("POST /api/lists", h.withOwner(h.createList))
	mux.HandleFunc("PATCH /api/lists/{id}", h.withOwner(h.renameList))
	mux.HandleFunc("DELETE /api/lists/{id}", h.withOwner(h.deleteList))

	mux.HandleFunc("GET /api/templates", h.withOwner(h.listTemplates))
	mux.HandleFunc("POST /api/templates", h.withOwner(h.createTemplate))
	mux.HandleFunc("PATCH /api/templates/{id}", h.withOwner(h.updateTemplate))
	mux.HandleFunc("DELETE /api/templates/{id}", h.withOwner(h.deleteTemplate))

	mux.HandleFunc("POST /api/assist", h.withOwner(h.assist))
	mux.HandleFunc("GET /api/version", h.version)
}

// StatusHandler returns the public status route.
func (h *Handlers) StatusHandler() http.HandlerFunc { return h.status }

type ownerHandler func(w http.ResponseWriter, r *http.Request, owner string)

func (h *Handlers) withOwner(next ownerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := OwnerFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "no owner in request")
			return
		}
		next(w, r, owner)
	}
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps store errors onto status codes.
func (h *Handlers) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, remote.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, task.ErrInvalid), errors.Is(err, remote.ErrPendingID):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.Logger.Error("store request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *Handlers) changed(r *http.Request, owner, record string) {
	if h.Bus == nil {
		return
	}
	_ = h.Bus.Publish(r.Context(), &notify.Event{
		Type:    notify.TypeChanged,
		Owner:   owner,
		Subject: r.Method + " " + r.URL.Path,
		Record:  record,
	})
}

// --- Task handlers ---

func (h *Handlers) listTasks(w http.ResponseWriter, r *http.Request, owner string) {
	tasks, err := h.Store.ListTasks(r.Context(), owner)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handlers) createTask(w http.ResponseWriter, r *http.Request, owner string) {
	var t task.Task
	if !decode(w, r, &t) {
		return
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := h.Store.CreateTask(r.Context(), owner, t)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.changed(r, owner, id)
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handlers) updateTask(w http.ResponseWriter, r *http.Request, owner string) {
	id := r.PathValue("id")
	var p task.Patch
	if !decode(w, r, &p) {
		return
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		writeError(w, http.StatusBadRequest, "title must not be empty")
		return
	}
	if err := h.Store.UpdateTask(r.Context(), owner, id, p); err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.changed(r, owner, id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) deleteTask(w http.ResponseWriter, r *http.Request, owner string) {
	id := r.PathValue("id")
	if err := h.Store.DeleteTask(r.Context(), owner, id); err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.changed(r, owner, id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) upsertPositions(w http.ResponseWriter, r *http.Request, owner string) {
	var positions []remote.Position
	if !decode(w, r, &positions) {
		return
	}
	if err := h.Store.UpsertPositions(r.Context(), owner, positions); err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.changed(r, owner, "")
	w.WriteHeader(http.StatusNoContent)
}

type completionRequest struct {
	CompletedAt *task.Wall `json:"completed_at"`
}

func (h *Handlers) logCompletion(w http.ResponseWriter, r *http.Request, owner string) {
	id := r.PathValue("id")
	var req completionRequest
	if !decode(w, r, &req) {
		return
	}
	at := time.Now()
	if req.CompletedAt != nil {
		at = req.CompletedAt.Time
	}
	if err := h.Store.LogCompletion(r.Context(), owner, id, at); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) listCompletions(w http.ResponseWriter, r *http.Request, owner string) {
	lister, ok := h.Store.(CompletionLister)
	if !ok {
		writeError(w, http.StatusNotImplemented, "store keeps no completion log")
		return
	}
	times, err := lister.Completions(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	out := make([]task.Wall, len(times))
	for i, at := range times {
		out[i] = task.WallOf(at)
	}
	writeJSON(w, http.StatusOK, out)
}

// --- List handlers ---

func (h *Handlers) listLists(w http.ResponseWriter, r *http.Request, owner string) {
	lists, err := h.Store.ListLists(r.Context(), owner)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if lists == nil {
		lists = []task.List{}
	}
	writeJSON(w, http.StatusOK, lists)
}

func (h *Handlers) createList(w http.ResponseWriter, r *http.Request, owner string) {
	var l task.List
	if !decode(w, r, &l) {
		return
	}
	if err := l.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := h.Store.CreateList(r.Context(), owner, l)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.changed(r, owner, id)
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handlers) renameList(w http.ResponseWriter, r *http.Request, owner string) {
	id := r.PathValue("id")
	var req struct {
		Title string `json:"title"`
	}
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title must not be empty")
		return
	}
	if err := h.Store.RenameList(r.Context(), owner, id, req.Title); err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.changed(r, owner, id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) deleteList(w http.ResponseWriter, r *http.Request, owner string) {
	id := r.PathValue("id")
	if err := h.Store.DeleteList(r.Context(), owner, id); err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.changed(r, owner, id)
	w.WriteHeader(http.StatusNoContent)
}

// --- Template handlers ---

func (h *Handlers) listTemplates(w http.ResponseWriter, r *http.Request, owner string) {
	templates, err := h.Store.ListTemplates(r.Context(), owner)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if templates == nil {
		templates = []task.Template{}
	}
	writeJSON(w, http.StatusOK, templates)
}

func (h *Handlers) createTemplate(w http.ResponseWriter, r *http.Request, owner string) {
	var tp task.Template
	if !decode(w, r, &tp) {
		return
	}
	if err := tp.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := h.Store.CreateTemplate(r.Context(), owner, tp)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.changed(r, owner, id)
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handlers) updateTemplate(w http.ResponseWriter, r *http.Request, owner string) {
	id := r.PathValue("id")
	var tp task.Template
	if !decode(w, r, &tp) {
		return
	}
	if err := tp.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Store.UpdateTemplate(r.Context(), owner, id, tp); err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.changed(r, owner, id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) deleteTemplate(w http.ResponseWriter, r *http.Request, owner string) {
	id := r.PathValue("id")
	if err := h.Store.DeleteTemplate(r.Context(), owner, id); err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.changed(r, owner, id)
	w.WriteHeader(http.StatusNoContent)
}

// --- Assist ---

func (h *Handlers) assist(w http.ResponseWriter, r *http.Request, owner string) {
	if h.Assistant == nil {
		writeError(w, http.StatusNotImplemented, "no assistant configured")
		return
	}
	if !h.Limiter.Allow(owner) {
		writeError(w, http.StatusTooManyRequests, "too many assist requests")
		return
	}
	var req assist.Request
	if !decode(w, r, &req) {
		return
	}
	text, err := h.Assistant.Generate(r.Context(), req)
	switch {
	case errors.Is(err, task.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.Logger.Warn("assist failed", "owner", owner, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

// --- Status ---

func (h *Handlers) status(w http.ResponseWriter, _ *http.Request) {
	uptime := ""
	if h.StartAt > 0 {
		uptime = time.Since(time.Unix(h.StartAt, 0)).Round(time.Second).String()
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.Version,
		"uptime":  uptime,
	})
}

func (h *Handlers) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": h.Version})
}
