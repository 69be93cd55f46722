// Package collector defines the Collector interface and the two collectors
// driven by the scheduler: one for Docker containers and one for the host.
package collector

import "context"

// Collector names used as registry result keys.
const (
	NameContainers = "containers"
	NameHost       = "host"
)

// Collector is the interface that all metric collectors must implement.
// Each collector produces one snapshot per call.
type Collector interface {
	// Name returns the unique identifier for this collector.
	Name() string

	// Collect gathers one snapshot. An error means the whole round failed
	// for this collector and nothing should be published for it.
	Collect(ctx context.Context) (interface{}, error)

	// IsAvailable checks if this collector can run in the current environment.
	// Collectors that return false will not be registered.
	IsAvailable() bool
}
