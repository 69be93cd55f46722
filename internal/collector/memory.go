// Host memory totals, read through gopsutil.
package collector

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/vitalis-app/dockdash/internal/models"
)

// readMemory reports host memory. Used is the kernel's active memory, not
// total minus free, and Percent is computed from it.
func readMemory(ctx context.Context) (models.HostMemory, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return models.HostMemory{}, fmt.Errorf("reading memory: %w", err)
	}
	return memoryFromStat(v), nil
}

func memoryFromStat(v *mem.VirtualMemoryStat) models.HostMemory {
	m := models.HostMemory{
		TotalBytes:     v.Total,
		FreeBytes:      v.Free,
		UsedBytes:      v.Active,
		AvailableBytes: v.Available,
	}
	if v.Total > 0 {
		m.Percent = float64(v.Active) / float64(v.Total) * 100.0
	}
	return m
}
