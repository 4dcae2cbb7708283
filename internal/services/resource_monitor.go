package services

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

// ResourceSnapshot captures system load at a point in time.
type ResourceSnapshot struct {
	Timestamp    time.Time `json:"timestamp"`
	CPUCores     int       `json:"cpu_cores"`
	CPUUsage     float64   `json:"cpu_usage"`
	MemoryGB     float64   `json:"memory_gb"`
	MemoryUsage  float64   `json:"memory_usage"`
	Goroutines   int       `json:"goroutines"`
	MaxForecasts int       `json:"max_concurrent_forecasts"`
}

// ResourceMonitorConfig bounds the forecast fan-out.
type ResourceMonitorConfig struct {
	MinWorkers      int
	MaxWorkers      int
	MemoryThreshold float64
}

// ResourceMonitor sizes the stock-returns fan-out from the host's CPU and
// memory and reports load for the health endpoint.
type ResourceMonitor struct {
	mu          sync.RWMutex
	config      ResourceMonitorConfig
	cpuCores    int
	memoryGB    float64
	memoryUsage float64
	logger      *logrus.Logger
}

// NewResourceMonitor creates a new resource monitor
func NewResourceMonitor(config ResourceMonitorConfig, logger *logrus.Logger) *ResourceMonitor {
	if config.MinWorkers <= 0 {
		config.MinWorkers = 1
	}
	if config.MaxWorkers < config.MinWorkers {
		config.MaxWorkers = 8
		if config.MaxWorkers < config.MinWorkers {
			config.MaxWorkers = config.MinWorkers
		}
	}
	if config.MemoryThreshold <= 0 {
		config.MemoryThreshold = 85.0
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	rm := &ResourceMonitor{
		config:   config,
		cpuCores: runtime.NumCPU(),
		logger:   logger,
	}

	if memInfo, err := mem.VirtualMemory(); err == nil {
		rm.memoryGB = float64(memInfo.Total) / (1024 * 1024 * 1024)
		rm.memoryUsage = memInfo.UsedPercent
	} else {
		logger.WithError(err).Warn("Could not get memory info, using default")
		rm.memoryGB = 8.0
	}

	logger.WithFields(logrus.Fields{
		"cpu_cores":   rm.cpuCores,
		"memory_gb":   rm.memoryGB,
		"concurrency": rm.Concurrency(),
	}).Info("Resource monitor initialized")

	return rm
}

// Concurrency returns how many forecasts may run at once.
func (rm *ResourceMonitor) Concurrency() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	workers := rm.cpuCores
	if rm.memoryGB < 4.0 || rm.memoryUsage > rm.config.MemoryThreshold {
		workers /= 2
	}
	if workers < rm.config.MinWorkers {
		workers = rm.config.MinWorkers
	}
	if workers > rm.config.MaxWorkers {
		workers = rm.config.MaxWorkers
	}
	return workers
}

// Snapshot samples current CPU and memory usage.
func (rm *ResourceMonitor) Snapshot(ctx context.Context) ResourceSnapshot {
	snap := ResourceSnapshot{
		Timestamp:  time.Now(),
		CPUCores:   rm.cpuCores,
		Goroutines: runtime.NumGoroutine(),
	}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		snap.CPUUsage = percents[0]
	} else if err != nil {
		rm.logger.WithError(err).Debug("Failed to sample CPU usage")
	}

	if memInfo, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		rm.mu.Lock()
		rm.memoryUsage = memInfo.UsedPercent
		rm.mu.Unlock()
		snap.MemoryUsage = memInfo.UsedPercent
	} else {
		rm.logger.WithError(err).Debug("Failed to sample memory usage")
	}

	rm.mu.RLock()
	snap.MemoryGB = rm.memoryGB
	rm.mu.RUnlock()
	snap.MaxForecasts = rm.Concurrency()
	return snap
}
