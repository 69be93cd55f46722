//go:build !windows

// Package service provides a stub implementation for non-Windows platforms.
// On macOS and Linux the dashboard runs as a foreground process or under
// systemd; the Windows service wrapper is not needed.
package service

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// DashboardService runs the dashboard until SIGINT or SIGTERM on
// non-Windows platforms.
type DashboardService struct {
	logger  *zap.Logger
	startFn func(ctx context.Context) error
}

// New creates a stub service wrapper for non-Windows platforms.
func New(logger *zap.Logger, startFn func(ctx context.Context) error) *DashboardService {
	return &DashboardService{
		logger:  logger,
		startFn: startFn,
	}
}

// IsWindowsService always returns false on non-Windows platforms.
func IsWindowsService() bool {
	return false
}

// Run executes the dashboard directly, cancelling it on SIGINT or SIGTERM.
func (s *DashboardService) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down")
	}()

	return s.startFn(ctx)
}
