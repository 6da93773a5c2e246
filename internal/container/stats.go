package container

import (
	"strings"

	"github.com/docker/docker/api/types/container"

	"github.com/agentdock/agentdock/internal/domain"
)

// computeStats reduces a raw Docker stats sample to the snapshot we expose.
// CPU% follows docker stats: (Δcpu / Δsystem) × onlineCPUs × 100.
func computeStats(raw *container.StatsResponse) *domain.ContainerStats {
	stats := &domain.ContainerStats{
		MemoryUsage: raw.MemoryStats.Usage,
		MemoryLimit: raw.MemoryStats.Limit,
	}

	cpuDelta := float64(raw.CPUStats.CPUUsage.TotalUsage) - float64(raw.PreCPUStats.CPUUsage.TotalUsage)
	sysDelta := float64(raw.CPUStats.SystemUsage) - float64(raw.PreCPUStats.SystemUsage)
	online := float64(raw.CPUStats.OnlineCPUs)
	if online == 0 {
		online = float64(len(raw.CPUStats.CPUUsage.PercpuUsage))
	}
	if sysDelta > 0 && cpuDelta > 0 {
		stats.CPUPercent = cpuDelta / sysDelta * online * 100.0
	}

	if raw.MemoryStats.Limit > 0 {
		stats.MemoryPercent = float64(raw.MemoryStats.Usage) / float64(raw.MemoryStats.Limit) * 100.0
	}

	for _, nw := range raw.Networks {
		stats.NetworkRx += nw.RxBytes
		stats.NetworkTx += nw.TxBytes
	}

	for _, entry := range raw.BlkioStats.IoServiceBytesRecursive {
		switch {
		case strings.EqualFold(entry.Op, "read"):
			stats.BlockRead += entry.Value
		case strings.EqualFold(entry.Op, "write"):
			stats.BlockWrite += entry.Value
		}
	}

	return stats
}
