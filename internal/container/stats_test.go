package container

import (
	"math"
	"testing"

	"github.com/docker/docker/api/types/container"
)

func TestComputeStats_CPUPercent(t *testing.T) {
	raw := &container.StatsResponse{}
	raw.PreCPUStats.CPUUsage.TotalUsage = 1_000_000
	raw.CPUStats.CPUUsage.TotalUsage = 2_000_000
	raw.PreCPUStats.SystemUsage = 10_000_000
	raw.CPUStats.SystemUsage = 20_000_000
	raw.CPUStats.OnlineCPUs = 4

	stats := computeStats(raw)

	// Δcpu/Δsystem = 0.1, times 4 CPUs times 100.
	if math.Abs(stats.CPUPercent-40.0) > 0.001 {
		t.Errorf("Expected 40%% CPU, got %f", stats.CPUPercent)
	}
}

func TestComputeStats_FallsBackToPercpuCount(t *testing.T) {
	raw := &container.StatsResponse{}
	raw.PreCPUStats.CPUUsage.TotalUsage = 0
	raw.CPUStats.CPUUsage.TotalUsage = 5_000_000
	raw.PreCPUStats.SystemUsage = 0
	raw.CPUStats.SystemUsage = 100_000_000
	raw.CPUStats.CPUUsage.PercpuUsage = []uint64{1, 2}

	stats := computeStats(raw)

	if math.Abs(stats.CPUPercent-10.0) > 0.001 {
		t.Errorf("Expected 10%% CPU, got %f", stats.CPUPercent)
	}
}

func TestComputeStats_ZeroDeltasYieldZero(t *testing.T) {
	raw := &container.StatsResponse{}
	raw.CPUStats.OnlineCPUs = 2

	stats := computeStats(raw)
	if stats.CPUPercent != 0 {
		t.Errorf("Expected zero CPU for zero deltas, got %f", stats.CPUPercent)
	}
}

func TestComputeStats_Memory(t *testing.T) {
	raw := &container.StatsResponse{}
	raw.MemoryStats.Usage = 256 * 1024 * 1024
	raw.MemoryStats.Limit = 512 * 1024 * 1024

	stats := computeStats(raw)

	if stats.MemoryUsage != raw.MemoryStats.Usage {
		t.Errorf("Expected memory usage copied, got %d", stats.MemoryUsage)
	}
	if math.Abs(stats.MemoryPercent-50.0) > 0.001 {
		t.Errorf("Expected 50%% memory, got %f", stats.MemoryPercent)
	}
}

func TestComputeStats_NetworkAndBlockIO(t *testing.T) {
	raw := &container.StatsResponse{}
	raw.Networks = map[string]container.NetworkStats{
		"eth0": {RxBytes: 100, TxBytes: 200},
		"eth1": {RxBytes: 10, TxBytes: 20},
	}
	raw.BlkioStats.IoServiceBytesRecursive = []container.BlkioStatEntry{
		{Op: "Read", Value: 4096},
		{Op: "write", Value: 8192},
		{Op: "sync", Value: 1},
	}

	stats := computeStats(raw)

	if stats.NetworkRx != 110 || stats.NetworkTx != 220 {
		t.Errorf("Expected network sums 110/220, got %d/%d", stats.NetworkRx, stats.NetworkTx)
	}
	if stats.BlockRead != 4096 || stats.BlockWrite != 8192 {
		t.Errorf("Expected block IO 4096/8192, got %d/%d", stats.BlockRead, stats.BlockWrite)
	}
}
