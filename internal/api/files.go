package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentdock/agentdock/internal/files"
	"github.com/agentdock/agentdock/internal/identity"
)

// FilesHandler exposes the workspace file gateway over REST for clients that
// don't hold a WebSocket.
type FilesHandler struct {
	gw *files.Gateway
}

// NewFilesHandler creates a files handler.
func NewFilesHandler(gw *files.Gateway) *FilesHandler {
	return &FilesHandler{gw: gw}
}

// RegisterRoutes registers file gateway routes.
func (h *FilesHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/files", func(r chi.Router) {
		r.Get("/read", h.Read)
		r.Get("/list", h.List)
		r.Get("/stat", h.Stat)
		r.Post("/write", h.Write)
		r.Post("/delete", h.Delete)
		r.Post("/rename", h.Rename)
	})
	r.Get("/api/projects", h.GetProjects)
}

func targetFromQuery(r *http.Request) files.Target {
	q := r.URL.Query()
	return files.Target{
		ProjectPath:        q.Get("projectPath"),
		IsContainerProject: q.Get("isContainerProject") == "true",
		Path:               q.Get("path"),
	}
}

// writeGatewayError maps gateway errors to HTTP statuses without leaking
// command detail.
func writeGatewayError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, files.ErrPathInvalid):
		Error(w, http.StatusBadRequest, "invalid path")
	case errors.Is(err, files.ErrNotFound):
		Error(w, http.StatusNotFound, "not found")
	case errors.Is(err, files.ErrTooLarge):
		Error(w, http.StatusRequestEntityTooLarge, "content too large")
	default:
		slog.Error("File operation failed", "op", op, "error", err)
		Error(w, http.StatusInternalServerError, op+" failed")
	}
}

// Read returns file content.
func (h *FilesHandler) Read(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	content, err := h.gw.Read(r.Context(), userID, targetFromQuery(r))
	if err != nil {
		writeGatewayError(w, "read", err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"content": content})
}

// List returns the direct children of a directory.
func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	includeHidden := r.URL.Query().Get("hidden") == "true"
	entries, err := h.gw.List(r.Context(), userID, targetFromQuery(r), includeHidden)
	if err != nil {
		writeGatewayError(w, "list", err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// Stat returns metadata for a single path.
func (h *FilesHandler) Stat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	entry, err := h.gw.Stat(r.Context(), userID, targetFromQuery(r))
	if err != nil {
		writeGatewayError(w, "stat", err)
		return
	}
	JSON(w, http.StatusOK, entry)
}

type writeRequest struct {
	ProjectPath        string `json:"projectPath"`
	IsContainerProject bool   `json:"isContainerProject"`
	Path               string `json:"path"`
	Content            string `json:"content"`
}

// Write stores file content.
func (h *FilesHandler) Write(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "malformed request")
		return
	}

	t := files.Target{ProjectPath: req.ProjectPath, IsContainerProject: req.IsContainerProject, Path: req.Path}
	if err := h.gw.Write(r.Context(), userID, t, []byte(req.Content)); err != nil {
		writeGatewayError(w, "write", err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "written"})
}

type pathRequest struct {
	ProjectPath        string `json:"projectPath"`
	IsContainerProject bool   `json:"isContainerProject"`
	Path               string `json:"path"`
	NewPath            string `json:"newPath,omitempty"`
}

// Delete removes a file or directory.
func (h *FilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "malformed request")
		return
	}

	t := files.Target{ProjectPath: req.ProjectPath, IsContainerProject: req.IsContainerProject, Path: req.Path}
	if err := h.gw.Delete(r.Context(), userID, t); err != nil {
		writeGatewayError(w, "delete", err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Rename moves a file or directory within the same project.
func (h *FilesHandler) Rename(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "malformed request")
		return
	}

	t := files.Target{ProjectPath: req.ProjectPath, IsContainerProject: req.IsContainerProject, Path: req.Path}
	if err := h.gw.Rename(r.Context(), userID, t, req.NewPath); err != nil {
		writeGatewayError(w, "rename", err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

// GetProjects lists the user's projects, bootstrapping a default workspace
// for first-time users.
func (h *FilesHandler) GetProjects(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	projects, err := h.gw.GetProjects(r.Context(), userID)
	if err != nil {
		writeGatewayError(w, "projects", err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"projects": projects})
}
