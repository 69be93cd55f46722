// Host snapshot collector. Gathers CPU, memory, OS and network readings
// concurrently and combines them into one HostMetrics record.
package collector

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vitalis-app/dockdash/internal/derive"
	"github.com/vitalis-app/dockdash/internal/models"
)

// HostSource is the host information surface used by HostCollector.
// Temperature is best-effort and reports absence as nil.
type HostSource interface {
	CPU(ctx context.Context) (CPUReading, error)
	Memory(ctx context.Context) (models.HostMemory, error)
	OS(ctx context.Context) (models.HostOS, error)
	Network(ctx context.Context) ([]derive.InterfaceRate, error)
	Temperature(ctx context.Context) *float64
}

// SystemSource reads the local host through gopsutil.
type SystemSource struct {
	cpu     *cpuSource
	os      *osSource
	network *networkSource
	logger  *zap.Logger
}

// NewSystemSource creates a gopsutil-backed host source. logger may be nil.
func NewSystemSource(logger *zap.Logger) *SystemSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SystemSource{
		cpu:     &cpuSource{},
		os:      &osSource{},
		network: newNetworkSource(),
		logger:  logger,
	}
}

// CPU returns CPU identity and load.
func (s *SystemSource) CPU(ctx context.Context) (CPUReading, error) { return s.cpu.Read(ctx) }

// Memory returns host memory totals.
func (s *SystemSource) Memory(ctx context.Context) (models.HostMemory, error) {
	return readMemory(ctx)
}

// OS returns OS identity and uptime.
func (s *SystemSource) OS(ctx context.Context) (models.HostOS, error) { return s.os.Read(ctx) }

// Network returns per-interface throughput.
func (s *SystemSource) Network(ctx context.Context) ([]derive.InterfaceRate, error) {
	return s.network.Read(ctx)
}

// Temperature returns the hottest CPU sensor reading, or nil.
func (s *SystemSource) Temperature(ctx context.Context) *float64 {
	return readTemperature(ctx, s.logger)
}

// HostCollector produces one HostMetrics record per call.
type HostCollector struct {
	source HostSource
	now    func() time.Time
}

// NewHostCollector creates a host collector over the given source.
func NewHostCollector(source HostSource) *HostCollector {
	return &HostCollector{source: source, now: time.Now}
}

// Name returns the collector identifier.
func (c *HostCollector) Name() string { return NameHost }

// IsAvailable reports whether a host source is configured.
func (c *HostCollector) IsAvailable() bool { return c.source != nil }

// Collect returns a models.HostMetrics record.
func (c *HostCollector) Collect(ctx context.Context) (interface{}, error) {
	return c.Snapshot(ctx)
}

// Snapshot gathers all host readings concurrently. Any failing reading
// other than temperature fails the whole record.
func (c *HostCollector) Snapshot(ctx context.Context) (models.HostMetrics, error) {
	record := models.HostMetrics{Timestamp: c.now().UnixMilli()}

	var (
		cpuReading CPUReading
		ifaces     []derive.InterfaceRate
		temp       *float64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		cpuReading, err = c.source.CPU(gctx)
		return err
	})
	g.Go(func() (err error) {
		record.Memory, err = c.source.Memory(gctx)
		return err
	})
	g.Go(func() (err error) {
		record.OS, err = c.source.OS(gctx)
		return err
	})
	g.Go(func() (err error) {
		ifaces, err = c.source.Network(gctx)
		return err
	})
	g.Go(func() error {
		temp = c.source.Temperature(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		return models.HostMetrics{}, err
	}

	record.CPU = models.HostCPU{
		Manufacturer: cpuReading.Manufacturer,
		Brand:        cpuReading.Brand,
		CoreCount:    cpuReading.CoreCount,
		UsagePercent: cpuReading.UsagePercent,
		TemperatureC: temp,
	}
	record.Network = derive.SumNetworkRates(ifaces)
	return record, nil
}
