package docker

import (
	"context"

	"github.com/vitalis-app/dockdash/internal/derive"
)

// Runtime is the container runtime surface used by the collectors.
// It allows the Engine to be replaced by a fake in tests.
type Runtime interface {
	ListContainers(ctx context.Context) ([]Container, error)
	ContainerStats(ctx context.Context, id string) (*derive.RawContainerStats, error)
}

var _ Runtime = (*Client)(nil)
