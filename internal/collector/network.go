// Network throughput: per-interface RX/TX rates from cumulative counters.
// Uses gopsutil for cross-platform network metrics.
package collector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v3/net"

	"github.com/vitalis-app/dockdash/internal/derive"
)

// ifaceCounters is one cumulative reading for an interface.
type ifaceCounters struct {
	rx uint64
	tx uint64
}

// networkSource tracks previous readings to turn counters into rates.
// It is only called from within a collection round, and rounds never overlap.
type networkSource struct {
	last     map[string]ifaceCounters
	lastTime time.Time
	now      func() time.Time
}

func newNetworkSource() *networkSource {
	return &networkSource{now: time.Now}
}

// Read returns per-interface rates since the previous call. The first call
// returns zero rates while establishing a baseline.
func (s *networkSource) Read(ctx context.Context) ([]derive.InterfaceRate, error) {
	counters, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("reading network counters: %w", err)
	}

	current := make(map[string]ifaceCounters, len(counters))
	for _, c := range counters {
		current[c.Name] = ifaceCounters{rx: c.BytesRecv, tx: c.BytesSent}
	}
	return s.update(current, s.now()), nil
}

// update computes rates against the previous reading and stores the new one.
func (s *networkSource) update(current map[string]ifaceCounters, at time.Time) []derive.InterfaceRate {
	elapsed := at.Sub(s.lastTime).Seconds()
	first := s.last == nil || elapsed <= 0

	rates := make([]derive.InterfaceRate, 0, len(current))
	for name, cur := range current {
		rate := derive.InterfaceRate{Name: name}
		if prev, ok := s.last[name]; ok && !first {
			rate.RxBytesPerSec = counterRate(prev.rx, cur.rx, elapsed)
			rate.TxBytesPerSec = counterRate(prev.tx, cur.tx, elapsed)
		}
		rates = append(rates, rate)
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i].Name < rates[j].Name })

	s.last = current
	s.lastTime = at
	return rates
}

// counterRate treats a counter that went backwards (interface reset) as 0.
func counterRate(prev, cur uint64, seconds float64) float64 {
	if cur < prev {
		return 0
	}
	return float64(cur-prev) / seconds
}
