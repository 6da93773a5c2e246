package container

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/containerd/errdefs"

	"github.com/agentdock/agentdock/internal/domain"
)

// Reconcile aligns registry records with the live runtime. For each active
// record: a running container is readopted into the cache, a present but
// stopped container is marked stopped, and a missing container's record is
// deleted. Best-effort per record; a slow daemon can't block boot for more
// than the per-record budget.
func (m *DockerManager) Reconcile(ctx context.Context) error {
	records, err := m.registry.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active containers: %w", err)
	}

	var adopted, stopped, purged int
	for _, rec := range records {
		entryCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout.ReconcileEntry)
		outcome := m.reconcileRecord(entryCtx, rec)
		cancel()

		switch outcome {
		case domain.ContainerRunning:
			adopted++
		case domain.ContainerStopped:
			stopped++
		case domain.ContainerRemoved:
			purged++
		}
	}

	slog.Info("Boot reconciliation complete",
		"records", len(records),
		"adopted", adopted,
		"stopped", stopped,
		"purged", purged,
	)
	return nil
}

func (m *DockerManager) reconcileRecord(ctx context.Context, rec *domain.ContainerInfo) domain.ContainerStatus {
	inspect, err := m.cli.ContainerInspect(ctx, rec.ContainerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			if delErr := m.registry.Delete(ctx, rec.ContainerID); delErr != nil {
				slog.Warn("Reconcile: registry delete failed", "container_id", rec.ContainerID, "error", delErr)
			}
			slog.Info("Reconcile: purged stale record", "container_id", rec.ContainerID, "user_id", rec.UserID)
			return domain.ContainerRemoved
		}
		// Inspect failure (daemon slow, transient): leave the record alone.
		slog.Warn("Reconcile: inspect failed", "container_id", rec.ContainerID, "error", err)
		return rec.Status
	}

	if inspect.State != nil && inspect.State.Running {
		now := time.Now()
		info := &domain.ContainerInfo{
			UserID:        rec.UserID,
			ContainerID:   rec.ContainerID,
			ContainerName: rec.ContainerName,
			Status:        domain.ContainerRunning,
			Tier:          rec.Tier,
			CreatedAt:     rec.CreatedAt,
			LastActive:    now,
		}

		m.mu.Lock()
		m.cache[rec.UserID] = info
		m.mu.Unlock()

		if err := m.registry.TouchLastActive(ctx, rec.ContainerID, now); err != nil {
			slog.Warn("Reconcile: registry touch failed", "container_id", rec.ContainerID, "error", err)
		}
		if rec.Status != domain.ContainerRunning {
			if err := m.registry.MarkStatus(ctx, rec.ContainerID, domain.ContainerRunning); err != nil {
				slog.Warn("Reconcile: registry status update failed", "container_id", rec.ContainerID, "error", err)
			}
		}
		return domain.ContainerRunning
	}

	if rec.Status != domain.ContainerStopped {
		if err := m.registry.MarkStatus(ctx, rec.ContainerID, domain.ContainerStopped); err != nil {
			slog.Warn("Reconcile: registry status update failed", "container_id", rec.ContainerID, "error", err)
		}
	}
	return domain.ContainerStopped
}
