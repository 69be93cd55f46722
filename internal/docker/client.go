// Package docker wraps the Docker Engine API client with the two calls the
// dashboard needs: listing containers and fetching one paired stats sample.
package docker

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/docker/docker/client"
)

// Config holds Docker Engine connection settings.
type Config struct {
	Host      string
	TLSVerify bool
	CertPath  string
	Timeout   time.Duration
}

// DefaultConfig returns settings for the local Engine socket.
func DefaultConfig() Config {
	return Config{
		Host:    "unix:///var/run/docker.sock",
		Timeout: 30 * time.Second,
	}
}

// Client wraps the Docker API client.
type Client struct {
	cli     *client.Client
	host    string
	timeout time.Duration
}

// NewClient builds a client for cfg without contacting the Engine, so a
// daemon that starts later is picked up by the next call. Zero fields take
// their DefaultConfig values. The API version is negotiated on first use.
func NewClient(cfg Config) (*Client, error) {
	def := DefaultConfig()
	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	opts := []client.Opt{
		client.WithHost(cfg.Host),
		client.WithAPIVersionNegotiation(),
	}

	if cfg.TLSVerify {
		opts = append(opts, client.WithTLSClientConfig(
			filepath.Join(cfg.CertPath, "ca.pem"),
			filepath.Join(cfg.CertPath, "cert.pem"),
			filepath.Join(cfg.CertPath, "key.pem"),
		))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Client{cli: cli, host: cfg.Host, timeout: cfg.Timeout}, nil
}

// Host returns the Engine address the client talks to.
func (c *Client) Host() string { return c.host }

// Ping checks that the Engine answers within the configured timeout.
func (c *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.cli.Ping(pingCtx); err != nil {
		return fmt.Errorf("pinging docker daemon at %s: %w", c.host, err)
	}
	return nil
}

// Close releases the underlying transport.
func (c *Client) Close() error {
	if c.cli != nil {
		return c.cli.Close()
	}
	return nil
}
