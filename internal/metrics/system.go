package metrics

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemStats describes host and process resource usage.
type SystemStats struct {
	TotalMemory     uint64  `json:"total_memory"`
	AvailableMemory uint64  `json:"available_memory"`
	MemoryPercent   float64 `json:"memory_percent"`
	ProcessRSS      uint64  `json:"process_rss"`
	CPUPercent      float64 `json:"cpu_percent"`
	NumCPU          int     `json:"num_cpu"`
	Goroutines      int     `json:"goroutines"`
}

// SystemSampler reads resource usage through gopsutil. Failed reads leave
// the corresponding fields zero.
type SystemSampler struct {
	proc *process.Process
}

// NewSystemSampler creates a sampler for the current process.
func NewSystemSampler() *SystemSampler {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		proc = nil
	}
	return &SystemSampler{proc: proc}
}

// Sample collects a SystemStats. CPU usage is measured over a short window.
func (s *SystemSampler) Sample() SystemStats {
	stats := SystemStats{
		NumCPU:     runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		stats.TotalMemory = vm.Total
		stats.AvailableMemory = vm.Available
		stats.MemoryPercent = vm.UsedPercent
	}

	if s.proc != nil {
		if info, err := s.proc.MemoryInfo(); err == nil {
			stats.ProcessRSS = info.RSS
		}
	}

	if pct, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(pct) > 0 {
		stats.CPUPercent = pct[0]
	}

	return stats
}

// SuggestPoolSize returns how many browsers fit in available memory when
// each needs perBrowserMB, clamped to [1, max].
func SuggestPoolSize(availableMemory uint64, perBrowserMB, max int) int {
	if perBrowserMB <= 0 || max < 1 {
		return 1
	}
	n := int(availableMemory / (uint64(perBrowserMB) * 1024 * 1024))
	if n < 1 {
		return 1
	}
	if n > max {
		return max
	}
	return n
}
