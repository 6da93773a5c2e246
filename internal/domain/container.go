// Package domain contains core domain types for the AgentDock backplane.
package domain

import (
	"fmt"
	"time"
)

// ContainerStatus is the lifecycle state of a managed container record.
type ContainerStatus string

const (
	ContainerRunning ContainerStatus = "running"
	ContainerStopped ContainerStatus = "stopped"
	ContainerRemoved ContainerStatus = "removed"
)

// ContainerInfo is the authoritative record for a user's container.
type ContainerInfo struct {
	UserID        string          `json:"user_id"`
	ContainerID   string          `json:"container_id"`
	ContainerName string          `json:"container_name"`
	Status        ContainerStatus `json:"status"`
	Tier          string          `json:"tier"`
	CreatedAt     time.Time       `json:"created_at"`
	LastActive    time.Time       `json:"last_active"`
}

// ContainerName derives the deterministic container name for a user.
func ContainerName(userID string) string {
	return fmt.Sprintf("agent-user-%s", userID)
}

// IsRunning returns true if the record believes the container is running.
func (c *ContainerInfo) IsRunning() bool {
	return c.Status == ContainerRunning
}

// IdleFor returns how long the container has been without activity.
func (c *ContainerInfo) IdleFor(now time.Time) time.Duration {
	return now.Sub(c.LastActive)
}

// ContainerStats is a point-in-time resource usage snapshot.
type ContainerStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryUsage   uint64  `json:"memory_usage"`
	MemoryLimit   uint64  `json:"memory_limit"`
	MemoryPercent float64 `json:"memory_percent"`
	NetworkRx     uint64  `json:"network_rx"`
	NetworkTx     uint64  `json:"network_tx"`
	BlockRead     uint64  `json:"block_read"`
	BlockWrite    uint64  `json:"block_write"`
}
