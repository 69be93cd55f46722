// Package config handles configuration loading from YAML files and environment variables.
// Configuration precedence: CLI flags > environment variables > config file > embedded > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a wrapper around time.Duration that supports YAML unmarshaling
// from human-readable strings like "2s", "60s", "8h".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parsed, err := time.ParseDuration(value.Value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value.Value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("unsupported duration format: %v", value.Kind)
	}
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// History persistence backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config holds all dashboard configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Docker     DockerConfig     `yaml:"docker"`
	Collection CollectionConfig `yaml:"collection"`
	History    HistoryConfig    `yaml:"history"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Listen    string `yaml:"listen"`
	StaticDir string `yaml:"static_dir"`
}

// DockerConfig holds Docker Engine connection settings.
type DockerConfig struct {
	Host      string   `yaml:"host"`
	TLSVerify bool     `yaml:"tls_verify"`
	CertPath  string   `yaml:"cert_path"`
	Timeout   Duration `yaml:"timeout"`
}

// CollectionConfig holds collection round settings.
type CollectionConfig struct {
	Interval           Duration `yaml:"interval"`
	RoundTimeout       Duration `yaml:"round_timeout"`
	MaxConcurrentStats int      `yaml:"max_concurrent_stats"`
}

// HistoryConfig holds host history retention and persistence settings.
type HistoryConfig struct {
	Backend       string   `yaml:"backend"`
	Path          string   `yaml:"path"`
	Capacity      int      `yaml:"capacity"`
	Retention     Duration `yaml:"retention"`
	FlushInterval Duration `yaml:"flush_interval"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen: ":8080",
		},
		Docker: DockerConfig{
			Host:    "unix:///var/run/docker.sock",
			Timeout: Duration{30 * time.Second},
		},
		Collection: CollectionConfig{
			Interval:           Duration{2 * time.Second},
			RoundTimeout:       Duration{10 * time.Second},
			MaxConcurrentStats: 16,
		},
		History: HistoryConfig{
			Backend:       BackendFile,
			Path:          "./history.json",
			Retention:     Duration{8 * time.Hour},
			FlushInterval: Duration{60 * time.Second},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// CLIOverrides holds values from command-line flags.
// Zero values are treated as "not set" and skipped.
type CLIOverrides struct {
	Listen      string
	DockerHost  string
	HistoryPath string
	LogLevel    string
}

// Locate searches standard config file paths and returns the first one found.
// Returns empty string if no config file exists.
func Locate() string {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadLayered loads configuration with the full precedence chain:
// CLI flags > env vars > external YAML file > embedded bytes > defaults.
//
// An optional configPath argument controls external-file discovery:
//   - omitted        → auto-discover via Locate()
//   - explicit value → use that path ("" means no external file)
func LoadLayered(cli CLIOverrides, embedded []byte, configPath ...string) (*Config, error) {
	cfg := DefaultConfig()

	if len(embedded) > 0 {
		if err := yaml.Unmarshal(embedded, cfg); err != nil {
			return nil, fmt.Errorf("parsing embedded config: %w", err)
		}
	}

	var filePath string
	if len(configPath) > 0 {
		filePath = configPath[0]
	} else {
		filePath = Locate()
	}
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", filePath, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("reading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if cli.Listen != "" {
		cfg.Server.Listen = cli.Listen
	}
	if cli.DockerHost != "" {
		cfg.Docker.Host = cli.DockerHost
	}
	if cli.HistoryPath != "" {
		cfg.History.Path = cli.HistoryPath
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}

	return cfg, nil
}

// WriteConfig serializes the config to a YAML file at the given path.
// Creates parent directories if needed.
func WriteConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0640)
}

// applyEnvOverrides applies DOCKDASH_* environment variable overrides.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DOCKDASH_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("DOCKDASH_STATIC_DIR"); v != "" {
		cfg.Server.StaticDir = v
	}
	// DOCKER_HOST is honoured too, as the docker CLI does.
	if v := os.Getenv("DOCKER_HOST"); v != "" {
		cfg.Docker.Host = v
	}
	if v := os.Getenv("DOCKDASH_DOCKER_HOST"); v != "" {
		cfg.Docker.Host = v
	}
	if v := os.Getenv("DOCKDASH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing DOCKDASH_INTERVAL: %w", err)
		}
		cfg.Collection.Interval = Duration{d}
	}
	if v := os.Getenv("DOCKDASH_HISTORY_BACKEND"); v != "" {
		cfg.History.Backend = v
	}
	if v := os.Getenv("DOCKDASH_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
	if v := os.Getenv("DOCKDASH_HISTORY_CAPACITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing DOCKDASH_HISTORY_CAPACITY: %w", err)
		}
		cfg.History.Capacity = n
	}
	if v := os.Getenv("DOCKDASH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

// HistoryCapacity returns the configured capacity, or retention divided by
// the collection interval when none is set.
func (c *Config) HistoryCapacity() int {
	if c.History.Capacity > 0 {
		return c.History.Capacity
	}
	interval := c.Collection.Interval.Duration
	if interval <= 0 || c.History.Retention.Duration <= 0 {
		return 0
	}
	return int(c.History.Retention.Duration / interval)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server listen address is required")
	}
	if c.Docker.Host == "" {
		return fmt.Errorf("docker host is required")
	}
	if c.Collection.Interval.Duration <= 0 {
		return fmt.Errorf("collection interval must be positive (got: %s)", c.Collection.Interval.Duration)
	}
	if c.Collection.RoundTimeout.Duration <= 0 {
		return fmt.Errorf("collection round timeout must be positive (got: %s)", c.Collection.RoundTimeout.Duration)
	}
	if c.Collection.MaxConcurrentStats < 1 {
		return fmt.Errorf("max concurrent stats must be at least 1 (got: %d)", c.Collection.MaxConcurrentStats)
	}
	if c.History.FlushInterval.Duration <= c.Collection.Interval.Duration {
		return fmt.Errorf("history flush interval (%s) must be greater than collection interval (%s)",
			c.History.FlushInterval.Duration, c.Collection.Interval.Duration)
	}
	switch c.History.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("unknown history backend %q", c.History.Backend)
	}
	if c.History.Path == "" {
		return fmt.Errorf("history path is required")
	}
	if c.History.Capacity < 0 {
		return fmt.Errorf("history capacity must not be negative (got: %d)", c.History.Capacity)
	}
	if c.HistoryCapacity() < 1 {
		return fmt.Errorf("history retention (%s) is shorter than one collection interval", c.History.Retention.Duration)
	}
	return nil
}
