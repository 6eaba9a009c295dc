// Mulegraph - fraud-ring graph analytics that deploys in 60 seconds.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/mulegraph/internal/api"
	"github.com/opensource-finance/mulegraph/internal/bus"
	"github.com/opensource-finance/mulegraph/internal/cache"
	"github.com/opensource-finance/mulegraph/internal/domain"
	"github.com/opensource-finance/mulegraph/internal/engine"
	"github.com/opensource-finance/mulegraph/internal/repository"
	"github.com/opensource-finance/mulegraph/internal/rulesx"
	"github.com/opensource-finance/mulegraph/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("MULEGRAPH_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting mulegraph",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	cfg := domain.DefaultConfig()
	if os.Getenv("MULEGRAPH_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	rulesEngine, err := loadCustomRules()
	if err != nil {
		slog.Error("failed to initialize custom rules engine", "error", err)
		os.Exit(1)
	}
	if rulesEngine != nil {
		slog.Info("custom rules engine initialized", "rules_count", rulesEngine.RulesCount())
	}

	eng, err := engine.New(cfg.Engine, rulesEngine)
	if err != nil {
		slog.Error("failed to initialize detection engine", "error", err)
		os.Exit(1)
	}
	slog.Info("detection engine initialized",
		"fan_min_spokes", cfg.Engine.FanMinSpokes,
		"cycle_max_length", cfg.Engine.CycleMaxLength,
		"parallel_detectors", cfg.Engine.ParallelDetectors,
	)

	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("MULEGRAPH_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, cacheImpl, eng)

		tenantIDs := []string{}
		if envTenants := os.Getenv("MULEGRAPH_TENANTS"); envTenants != "" {
			tenantIDs = []string{envTenants}
		}

		workerCfg := worker.Config{TenantIDs: tenantIDs}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, eng, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("mulegraph is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("mulegraph shutdown complete")
}

// loadCustomRules builds the optional CEL custom-scoring engine from a rule
// file pointed to by MULEGRAPH_RULES_FILE. Returns a nil engine (not an
// error) when the variable is unset, matching rulesx.Engine.Evaluate's
// documented zero-rules behavior of contributing no points.
func loadCustomRules() (*rulesx.Engine, error) {
	path := os.Getenv("MULEGRAPH_RULES_FILE")
	if path == "" {
		return nil, nil
	}

	eng, err := rulesx.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	rules, err := rulesx.LoadRulesFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules file %s: %w", path, err)
	}
	for _, r := range rules {
		if err := eng.LoadRule(r); err != nil {
			return nil, fmt.Errorf("failed to load rule %s: %w", r.ID, err)
		}
	}
	return eng, nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  +------------------------------------------+")
	fmt.Println("  |              MULEGRAPH                    |")
	fmt.Println("  |     Fraud-ring graph analytics engine     |")
	fmt.Println("  +------------------------------------------+")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /batches            - Submit a batch and analyze synchronously")
	fmt.Println("    POST /batches/async      - Submit a batch for worker-side processing")
	fmt.Println("    GET  /batches             - List batch IDs submitted since a timestamp")
	fmt.Println("    GET  /batches/{id}        - Get a submitted batch by ID")
	fmt.Println("    GET  /batches/{id}/report - Get the analysis report for a batch")
	fmt.Println("    GET  /health              - Health check")
	fmt.Println("    GET  /ready               - Readiness check")
	fmt.Println("    GET  /metrics             - Prometheus metrics")
	fmt.Println()
}
