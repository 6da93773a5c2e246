package container

import (
	"context"
	"log/slog"
	"time"
)

// CleanupCallback is called after the reaper destroys a user's container,
// so session brokers can drop any state keyed to it.
type CleanupCallback func(userID string)

// StartReaper runs a background goroutine that periodically destroys
// containers whose last activity exceeds the idle threshold. Reaping never
// removes the per-user host data directory.
func StartReaper(ctx context.Context, mgr Manager, interval, idleAfter time.Duration, onCleanup CleanupCallback) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Idle reaper started", "interval", interval, "idle_after", idleAfter)

		for {
			select {
			case <-ticker.C:
				reapIdle(ctx, mgr, idleAfter, onCleanup)
			case <-ctx.Done():
				slog.Info("Idle reaper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func reapIdle(ctx context.Context, mgr Manager, idleAfter time.Duration, onCleanup CleanupCallback) {
	now := time.Now()
	var reaped int

	for _, info := range mgr.ListAll() {
		if info.IdleFor(now) < idleAfter {
			continue
		}

		slog.Info("Reaping idle container",
			"container_id", info.ContainerID,
			"user_id", info.UserID,
			"idle", info.IdleFor(now).Round(time.Second),
		)

		if err := mgr.Destroy(ctx, info.UserID, false); err != nil {
			slog.Error("Reaper failed to destroy container",
				"error", err,
				"container_id", info.ContainerID,
				"user_id", info.UserID)
			continue
		}

		if onCleanup != nil {
			onCleanup(info.UserID)
		}
		reaped++
	}

	if reaped > 0 {
		slog.Info("Idle reaper sweep complete", "reaped", reaped)
	}
}
