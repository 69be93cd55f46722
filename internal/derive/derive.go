package derive

import (
	"strings"

	"github.com/vitalis-app/dockdash/internal/models"
)

// Memory stat keys holding reclaimable page cache, in lookup order.
var cacheKeys = []string{"cache", "inactive_file"}

// Normalize derives the full normalized stats record for one raw sample.
// A nil sample yields a zero record.
func Normalize(raw *RawContainerStats) models.ContainerStats {
	if raw == nil {
		return models.ContainerStats{NetIO: map[string]models.InterfaceIO{}}
	}
	mem := Memory(raw)
	return models.ContainerStats{
		CPUPercent:       CPUPercent(raw),
		MemoryUsageBytes: mem.WorkingSet,
		MemoryLimitBytes: mem.Limit,
		MemoryPercent:    mem.Percent,
		NetIO:            NetIO(raw),
		BlockIO:          BlockIO(raw),
		PIDCount:         PIDs(raw),
	}
}

// CPUPercent computes container CPU usage from the current and previous
// samples as (cpuDelta / systemDelta) * onlineCPUs * 100.
// It returns 0 when either delta is not positive or a counter is missing,
// which is always the case for the first sample after a container starts.
func CPUPercent(raw *RawContainerStats) float64 {
	if raw == nil || raw.CPUStats == nil || raw.PreCPUStats == nil {
		return 0
	}
	cur, prev := raw.CPUStats, raw.PreCPUStats
	curTotal, ok1 := totalUsage(cur)
	prevTotal, ok2 := totalUsage(prev)
	if !ok1 || !ok2 || cur.SystemUsage == nil || prev.SystemUsage == nil {
		return 0
	}

	// Counters are unsigned; compare before subtracting to avoid wraparound.
	if curTotal <= prevTotal || *cur.SystemUsage <= *prev.SystemUsage {
		return 0
	}
	cpuDelta := float64(curTotal - prevTotal)
	systemDelta := float64(*cur.SystemUsage - *prev.SystemUsage)

	return cpuDelta / systemDelta * float64(OnlineCPUs(cur)) * 100.0
}

// OnlineCPUs resolves the CPU count of a sample: the explicit online_cpus
// field, then the length of the per-CPU usage array, then 1.
func OnlineCPUs(s *CPUStats) int {
	if s == nil {
		return 1
	}
	if s.OnlineCPUs != nil && *s.OnlineCPUs > 0 {
		return int(*s.OnlineCPUs)
	}
	if s.CPUUsage != nil && len(s.CPUUsage.PercpuUsage) > 0 {
		return len(s.CPUUsage.PercpuUsage)
	}
	return 1
}

func totalUsage(s *CPUStats) (uint64, bool) {
	if s.CPUUsage == nil || s.CPUUsage.TotalUsage == nil {
		return 0, false
	}
	return *s.CPUUsage.TotalUsage, true
}

// MemoryResult is the derived memory view of one sample.
type MemoryResult struct {
	WorkingSet uint64
	Limit      uint64
	Percent    float64
}

// Memory derives the working set (usage minus page cache) and its share of
// the limit. Cache is read from "cache", then "inactive_file", defaulting
// to 0. Percent is 0 when the limit is absent or zero and is not clamped.
func Memory(raw *RawContainerStats) MemoryResult {
	if raw == nil || raw.MemoryStats == nil || raw.MemoryStats.Usage == nil {
		return MemoryResult{}
	}
	ms := raw.MemoryStats
	usage := *ms.Usage
	cache := cacheBytes(ms.Stats)

	var workingSet uint64
	if usage > cache {
		workingSet = usage - cache
	}

	result := MemoryResult{WorkingSet: workingSet}
	if ms.Limit != nil && *ms.Limit > 0 {
		result.Limit = *ms.Limit
		result.Percent = float64(workingSet) / float64(*ms.Limit) * 100.0
	}
	return result
}

func cacheBytes(stats map[string]uint64) uint64 {
	for _, key := range cacheKeys {
		if v, ok := stats[key]; ok {
			return v
		}
	}
	return 0
}

// BlockIO sums service bytes for read and write operations. The op tag is
// compared case-insensitively. The recursive per-device list is used when it
// has entries, then the flat list; with neither the result is zero.
func BlockIO(raw *RawContainerStats) models.BlockIO {
	if raw == nil || raw.BlkioStats == nil {
		return models.BlockIO{}
	}
	entries := raw.BlkioStats.Recursive
	if len(entries) == 0 {
		entries = raw.BlkioStats.Flat
	}
	return SumBlockIO(entries)
}

// SumBlockIO adds up read and write entries. Other ops (sync, async, total)
// are ignored.
func SumBlockIO(entries []BlkioEntry) models.BlockIO {
	var result models.BlockIO
	for _, e := range entries {
		switch strings.ToLower(e.Op) {
		case "read":
			result.ReadBytes += e.Value
		case "write":
			result.WriteBytes += e.Value
		}
	}
	return result
}

// NetIO copies per-interface counters. The map is never nil.
func NetIO(raw *RawContainerStats) map[string]models.InterfaceIO {
	result := make(map[string]models.InterfaceIO)
	if raw == nil {
		return result
	}
	for name, n := range raw.Networks {
		result[name] = models.InterfaceIO{RxBytes: n.RxBytes, TxBytes: n.TxBytes}
	}
	return result
}

// PIDs returns the current process count, or 0 when not reported.
func PIDs(raw *RawContainerStats) uint64 {
	if raw == nil || raw.PidsStats == nil || raw.PidsStats.Current == nil {
		return 0
	}
	return *raw.PidsStats.Current
}

// InterfaceRate is the throughput of one host interface.
type InterfaceRate struct {
	Name          string
	RxBytesPerSec float64
	TxBytesPerSec float64
}

// SumNetworkRates totals per-interface throughput for the host record.
// A nil or empty list yields zero.
func SumNetworkRates(ifaces []InterfaceRate) models.NetworkRate {
	var total models.NetworkRate
	for _, i := range ifaces {
		total.RxBytesPerSec += i.RxBytesPerSec
		total.TxBytesPerSec += i.TxBytesPerSec
	}
	return total
}
