package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agentdock/agentdock/internal/config"
	"github.com/agentdock/agentdock/internal/container"
	"github.com/agentdock/agentdock/internal/identity"
)

// provisionLocks prevents concurrent provisioning for the same user.
var provisionLocks sync.Map

// destroyLocks prevents concurrent destroy requests for the same user.
var destroyLocks sync.Map

// Cleanup is called after a container is destroyed so dependent session
// state can be released.
type Cleanup func(userID string)

// ContainerHandler handles container-related endpoints.
type ContainerHandler struct {
	mgr     container.Manager
	cfg     *config.Config
	cleanup Cleanup
}

// NewContainerHandler creates a new container handler.
func NewContainerHandler(mgr container.Manager, cfg *config.Config, cleanup Cleanup) *ContainerHandler {
	if cleanup == nil {
		cleanup = func(string) {}
	}
	return &ContainerHandler{mgr: mgr, cfg: cfg, cleanup: cleanup}
}

// RegisterRoutes registers container routes.
func (h *ContainerHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/containers/stats", h.Stats)
		r.Post("/provision", h.Provision)
		r.Post("/destroy", h.Destroy)
	})
}

// GetMe returns the caller's identity and container binding.
func (h *ContainerHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	resp := map[string]interface{}{
		"user_id": userID,
	}
	if info, ok := h.mgr.GetByUser(userID); ok {
		resp["container_id"] = info.ContainerID
		resp["container_name"] = info.ContainerName
		resp["status"] = string(info.Status)
		resp["tier"] = info.Tier
		resp["last_active"] = info.LastActive.UTC().Format(time.RFC3339)
	}
	JSON(w, http.StatusOK, resp)
}

// Stats returns a point-in-time resource snapshot for the user's container.
func (h *ContainerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	stats, err := h.mgr.Stats(r.Context(), userID)
	if err != nil {
		if errors.Is(err, container.ErrNotFound) {
			Error(w, http.StatusNotFound, "no container")
			return
		}
		slog.Error("Failed to read container stats", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to read stats")
		return
	}
	JSON(w, http.StatusOK, stats)
}

// Provision creates and starts a container for the user.
func (h *ContainerHandler) Provision(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	// Prevent concurrent provisioning requests.
	lock, _ := provisionLocks.LoadOrStore(userID, &sync.Mutex{})
	mutex := lock.(*sync.Mutex)
	if !mutex.TryLock() {
		slog.Warn("Provisioning already in progress", "user_id", userID)
		Error(w, http.StatusConflict, "provisioning_in_progress")
		return
	}
	defer func() {
		mutex.Unlock()
		provisionLocks.Delete(userID)
	}()

	tier := r.URL.Query().Get("tier")
	slog.Info("Provisioning container", "user_id", userID, "tier", tier)

	info, err := h.mgr.GetOrCreate(r.Context(), userID, tier)
	if err != nil {
		slog.Error("Failed to provision container", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to provision container")
		return
	}

	slog.Info("Container provisioned", "user_id", userID, "container_id", info.ContainerID)
	JSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ready",
		"container_id": info.ContainerID,
		"tier":         info.Tier,
	})
}

// Destroy stops and removes the user's container. The response returns as
// soon as the destroy is underway; cleanup finishes on a background
// goroutine with its own timeout.
func (h *ContainerHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	// Prevent concurrent destroy requests.
	lock, _ := destroyLocks.LoadOrStore(userID, &sync.Mutex{})
	mutex := lock.(*sync.Mutex)
	if !mutex.TryLock() {
		slog.Warn("Destroy already in progress", "user_id", userID)
		JSON(w, http.StatusOK, map[string]string{"status": "destroying"})
		return
	}
	defer func() {
		mutex.Unlock()
		destroyLocks.Delete(userID)
	}()

	removeVolume := r.URL.Query().Get("remove_volume") == "true"
	h.cleanup(userID)

	go func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), h.cfg.Timeout.DestroyCleanup)
		defer cancel()

		if err := h.mgr.Destroy(cleanupCtx, userID, removeVolume); err != nil {
			slog.Error("Failed to destroy container", "error", err, "user_id", userID)
		} else {
			slog.Info("Container destroy completed", "user_id", userID)
		}
	}()

	JSON(w, http.StatusOK, map[string]string{"status": "destroyed"})
}
