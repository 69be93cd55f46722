// Container snapshot collector. Lists every container and derives stats
// for the running ones. Stats fetches run concurrently; one failing fetch
// only nulls that container's stats.
package collector

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vitalis-app/dockdash/internal/derive"
	"github.com/vitalis-app/dockdash/internal/docker"
	"github.com/vitalis-app/dockdash/internal/models"
	"github.com/vitalis-app/dockdash/internal/telemetry"
)

// defaultMaxConcurrentStats bounds in-flight stats requests when unset.
const defaultMaxConcurrentStats = 16

// ContainerCollector produces one ContainerSnapshot per container.
type ContainerCollector struct {
	runtime       docker.Runtime
	maxConcurrent int
	logger        *zap.Logger
	metrics       *telemetry.Metrics
}

// NewContainerCollector creates a container collector. maxConcurrent <= 0
// selects the default bound. logger and metrics may be nil.
func NewContainerCollector(rt docker.Runtime, maxConcurrent int, logger *zap.Logger, metrics *telemetry.Metrics) *ContainerCollector {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentStats
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContainerCollector{
		runtime:       rt,
		maxConcurrent: maxConcurrent,
		logger:        logger,
		metrics:       metrics,
	}
}

// Name returns the collector identifier.
func (c *ContainerCollector) Name() string { return NameContainers }

// IsAvailable reports whether a runtime client is configured.
func (c *ContainerCollector) IsAvailable() bool { return c.runtime != nil }

// Collect returns []models.ContainerSnapshot covering all containers in all
// states. Only a listing failure is returned as an error.
func (c *ContainerCollector) Collect(ctx context.Context) (interface{}, error) {
	return c.Snapshot(ctx)
}

// Snapshot is the typed form of Collect.
func (c *ContainerCollector) Snapshot(ctx context.Context) ([]models.ContainerSnapshot, error) {
	containers, err := c.runtime.ListContainers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}

	snapshots := make([]models.ContainerSnapshot, len(containers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrent)

	for i, cont := range containers {
		snapshots[i] = models.ContainerSnapshot{
			ID:     cont.ID,
			Name:   cont.Name,
			Image:  cont.Image,
			State:  cont.State,
			Status: cont.Status,
		}
		if cont.State != models.StateRunning {
			continue
		}

		i, cont := i, cont
		g.Go(func() error {
			snapshots[i].Stats = c.fetchStats(gctx, cont)
			return nil
		})
	}

	// Goroutines never return errors; Wait only joins them.
	_ = g.Wait()

	return snapshots, nil
}

// fetchStats returns nil when the sample cannot be fetched.
func (c *ContainerCollector) fetchStats(ctx context.Context, cont docker.Container) *models.ContainerStats {
	raw, err := c.runtime.ContainerStats(ctx, cont.ID)
	if err != nil {
		c.metrics.StatsFailed()
		c.logger.Warn("Container stats unavailable",
			zap.String("id", cont.ID),
			zap.String("name", cont.Name),
			zap.Error(err))
		return nil
	}
	stats := derive.Normalize(raw)
	return &stats
}
