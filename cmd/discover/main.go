// Command discover runs one partnership discovery pass against the graph and
// exits 0 on success, 1 on any fatal error.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/agenthands/symbiosis/internal/config"
	"github.com/agenthands/symbiosis/internal/core/discovery"
	"github.com/agenthands/symbiosis/internal/driver"
	"github.com/agenthands/symbiosis/internal/logger"
	"github.com/agenthands/symbiosis/internal/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (defaults to $CONFIG_PATH)")
	dryRun := flag.Bool("dry-run", false, "score and report without modifying stored matches")
	flag.Parse()

	if err := run(*configPath, *dryRun); err != nil {
		fmt.Fprintln(os.Stderr, "discover:", err)
		os.Exit(1)
	}
}

func run(configPath string, dryRun bool) error {
	_ = godotenv.Load()

	cfg, err := config.Resolve(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := driver.NewNeo4jDriver(ctx, cfg.Neo4j, log)
	if err != nil {
		log.Error("cannot reach graph store", zap.Error(err))
		return err
	}
	defer func() { _ = d.Close(context.Background()) }()

	if err := d.BuildIndices(ctx); err != nil {
		log.Warn("schema bootstrap failed", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewDiscovery(reg)
	engine := discovery.NewEngine(d, cfg.Discovery, cfg.Concurrency.ScoreWorkers, log.Named("discovery"), m)

	_, runErr := engine.Run(ctx, discovery.RunOptions{DryRun: dryRun})

	if path := cfg.Discovery.MetricsTextfile; path != "" {
		if err := prometheus.WriteToTextfile(path, reg); err != nil {
			log.Warn("failed to write metrics textfile", zap.String("path", path), zap.Error(err))
		}
	}

	if runErr != nil {
		switch {
		case errors.Is(runErr, context.Canceled):
			log.Warn("discovery interrupted")
		case errors.Is(runErr, discovery.ErrLockHeld):
			log.Error("another discovery run holds the lock", zap.String("lock_file", cfg.Discovery.LockFile))
		default:
			log.Error("discovery failed", zap.Error(runErr))
		}
		return runErr
	}
	return nil
}
