// CPU identity and load, read through gopsutil.
package collector

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
)

// CPUReading is the CPU part of a host record, without temperature.
type CPUReading struct {
	Manufacturer string
	Brand        string
	CoreCount    int
	UsagePercent float64
}

// cpuIdentity is cached since the CPU model does not change at runtime.
type cpuIdentity struct {
	manufacturer string
	brand        string
	cores        int
}

// cpuSource reads CPU identity until it first succeeds, and load on every call.
type cpuSource struct {
	mu       sync.Mutex
	loaded   bool
	identity cpuIdentity
}

// Read returns identity and overall load. Load is measured against the
// previous call (interval 0), so it never blocks the round.
func (s *cpuSource) Read(ctx context.Context) (CPUReading, error) {
	identity, err := s.cachedIdentity(ctx)
	if err != nil {
		return CPUReading{}, err
	}

	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return CPUReading{}, fmt.Errorf("reading cpu load: %w", err)
	}

	reading := CPUReading{
		Manufacturer: identity.manufacturer,
		Brand:        identity.brand,
		CoreCount:    identity.cores,
	}
	if len(pct) > 0 {
		reading.UsagePercent = pct[0]
	}
	return reading, nil
}

func (s *cpuSource) cachedIdentity(ctx context.Context) (cpuIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.identity, nil
	}
	id, err := readCPUIdentity(ctx)
	if err != nil {
		return cpuIdentity{}, err
	}
	s.identity, s.loaded = id, true
	return id, nil
}

func readCPUIdentity(ctx context.Context) (cpuIdentity, error) {
	infos, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return cpuIdentity{}, fmt.Errorf("reading cpu info: %w", err)
	}

	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return cpuIdentity{}, fmt.Errorf("counting cpus: %w", err)
	}

	id := cpuIdentity{cores: cores}
	if len(infos) > 0 {
		id.manufacturer = vendorName(infos[0].VendorID)
		id.brand = strings.TrimSpace(infos[0].ModelName)
	}
	return id, nil
}

// vendorName maps CPUID vendor strings to display names.
func vendorName(vendorID string) string {
	switch vendorID {
	case "GenuineIntel":
		return "Intel"
	case "AuthenticAMD":
		return "AMD"
	case "":
		return "unknown"
	default:
		return vendorID
	}
}
