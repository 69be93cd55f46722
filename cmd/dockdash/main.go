// Package main is the entry point for the dockdash metrics dashboard.
// It loads configuration, connects to Docker, starts the collection
// scheduler and HTTP server, and runs as either a Windows service or a
// foreground process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/vitalis-app/dockdash/internal/broadcast"
	"github.com/vitalis-app/dockdash/internal/collector"
	"github.com/vitalis-app/dockdash/internal/config"
	"github.com/vitalis-app/dockdash/internal/docker"
	"github.com/vitalis-app/dockdash/internal/history"
	"github.com/vitalis-app/dockdash/internal/scheduler"
	"github.com/vitalis-app/dockdash/internal/server"
	"github.com/vitalis-app/dockdash/internal/service"
	"github.com/vitalis-app/dockdash/internal/telemetry"
)

var (
	// version is set at build time via -ldflags.
	version = "dev"

	configPath  = flag.String("config", "", "Path to configuration file (default: search standard locations)")
	listen      = flag.String("listen", "", "HTTP listen address")
	dockerHost  = flag.String("docker-host", "", "Docker Engine host, e.g. unix:///var/run/docker.sock")
	historyPath = flag.String("history", "", "History persistence path")
	logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	writeConfig = flag.String("write-config", "", "Write the effective configuration to this path and exit")
	showVersion = flag.Bool("version", false, "Show version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("dockdash %s\n", version)
		os.Exit(0)
	}

	cli := config.CLIOverrides{
		Listen:      *listen,
		DockerHost:  *dockerHost,
		HistoryPath: *historyPath,
		LogLevel:    *logLevel,
	}
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadLayered(cli, embeddedConfig, *configPath)
	} else {
		cfg, err = config.LoadLayered(cli, embeddedConfig)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *writeConfig != "" {
		if err := config.WriteConfig(cfg, *writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration written to %s\n", *writeConfig)
		os.Exit(0)
	}

	logger := initLogger(cfg)
	defer logger.Sync()

	logger.Info("Starting dockdash",
		zap.String("version", version),
		zap.String("listen", cfg.Server.Listen),
		zap.String("docker_host", cfg.Docker.Host))

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	svc := service.New(logger, func(ctx context.Context) error {
		return runDashboard(ctx, cfg, logger)
	})
	if service.IsWindowsService() {
		logger.Info("Running as Windows service")
	}
	if err := svc.Run(); err != nil {
		logger.Fatal("Dashboard failed", zap.Error(err))
	}
	logger.Info("Dashboard stopped")
}

// runDashboard wires all components and blocks until ctx is cancelled or
// the HTTP server fails.
func runDashboard(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.New(reg)

	store := history.Open(cfg.History.Backend, cfg.History.Path, cfg.HistoryCapacity(), logger.Named("history"), metrics)
	defer store.Close()
	store.Load(ctx)

	registry := collector.NewRegistry(logger.Named("collector"), metrics)

	dockerClient, err := docker.NewClient(docker.Config{
		Host:      cfg.Docker.Host,
		TLSVerify: cfg.Docker.TLSVerify,
		CertPath:  cfg.Docker.CertPath,
		Timeout:   cfg.Docker.Timeout.Duration,
	})
	if err != nil {
		// Only a malformed host or TLS setup gets here; host metrics still run.
		logger.Error("Invalid Docker client configuration, container metrics disabled", zap.Error(err))
	} else {
		defer dockerClient.Close()
		if err := dockerClient.Ping(ctx); err != nil {
			logger.Warn("Docker not reachable yet, containers appear once it answers",
				zap.String("host", dockerClient.Host()),
				zap.Error(err))
		}
		registry.Register(collector.NewContainerCollector(dockerClient,
			cfg.Collection.MaxConcurrentStats, logger.Named("containers"), metrics))
	}
	registry.Register(collector.NewHostCollector(collector.NewSystemSource(logger.Named("host"))))

	hub := broadcast.NewHub(broadcast.DefaultQueueSize, logger.Named("broadcast"), metrics)

	sched := scheduler.New(registry, store, hub, scheduler.Config{
		Interval:      cfg.Collection.Interval.Duration,
		FlushInterval: cfg.History.FlushInterval.Duration,
		RoundTimeout:  cfg.Collection.RoundTimeout.Duration,
	}, logger.Named("scheduler"), metrics)

	srv, err := server.New(server.Options{
		Listen:    cfg.Server.Listen,
		StaticDir: cfg.Server.StaticDir,
		Hub:       hub,
		History:   store,
		Gatherer:  reg,
		Logger:    logger.Named("http"),
	})
	if err != nil {
		return err
	}

	var names []string
	for _, c := range registry.Collectors() {
		names = append(names, c.Name())
	}

	logger.Info("Dashboard running",
		zap.Strings("collectors", names),
		zap.Duration("collect_interval", cfg.Collection.Interval.Duration),
		zap.Duration("flush_interval", cfg.History.FlushInterval.Duration),
		zap.Int("history_capacity", store.Capacity()),
		zap.String("history_backend", cfg.History.Backend))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})
	return g.Wait()
}

// initLogger creates a zap logger based on the configuration.
// It outputs to both console (human-readable) and optionally a JSON log file.
func initLogger(cfg *config.Config) *zap.Logger {
	var level zapcore.Level
	switch cfg.Logging.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		level,
	)

	cores := []zapcore.Core{consoleCore}

	if cfg.Logging.File != "" {
		file, err := os.OpenFile(cfg.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if err == nil {
			fileCore := zapcore.NewCore(
				zapcore.NewJSONEncoder(encoderConfig),
				zapcore.AddSync(file),
				level,
			)
			cores = append(cores, fileCore)
		}
	}

	return zap.New(zapcore.NewTee(cores...))
}
