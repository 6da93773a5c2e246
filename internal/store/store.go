// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/agentdock/agentdock/internal/domain"
)

// Registry defines the interface for persisting container records.
//
// The registry is authoritative only across process restarts; while a
// process is running the container manager's in-memory cache is
// authoritative and registry writes are best-effort.
type Registry interface {
	// Upsert creates or replaces the record for a container.
	Upsert(ctx context.Context, info *domain.ContainerInfo) error

	// MarkStatus updates the status of a container record.
	MarkStatus(ctx context.Context, containerID string, status domain.ContainerStatus) error

	// TouchLastActive updates the last_active timestamp for a container.
	TouchLastActive(ctx context.Context, containerID string, at time.Time) error

	// Delete removes a container record.
	Delete(ctx context.Context, containerID string) error

	// GetByUser retrieves the non-removed record for a user, or nil.
	GetByUser(ctx context.Context, userID string) (*domain.ContainerInfo, error)

	// ListActive retrieves all non-removed container records.
	ListActive(ctx context.Context) ([]*domain.ContainerInfo, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
