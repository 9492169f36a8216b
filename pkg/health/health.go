// Package health reports process and host health for the control plane.
package health

import (
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemStats is a point-in-time host resource snapshot.
type SystemStats struct {
	CPUPercent float64 `json:"cpuPercent"`
	MemPercent float64 `json:"memPercent"`
	MemUsedMB  uint64  `json:"memUsedMB"`
}

// Collect gathers host stats. Failures degrade to zero values; health
// reporting never errors.
func Collect() SystemStats {
	var stats SystemStats

	// Non-blocking sample: percentage since the previous call.
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		stats.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		stats.MemPercent = vm.UsedPercent
		stats.MemUsedMB = vm.Used / (1024 * 1024)
	}

	return stats
}
