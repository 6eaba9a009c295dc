package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opensource-finance/mulegraph/internal/api"
	"github.com/opensource-finance/mulegraph/internal/bus"
	"github.com/opensource-finance/mulegraph/internal/cache"
	"github.com/opensource-finance/mulegraph/internal/domain"
	"github.com/opensource-finance/mulegraph/internal/engine"
	"github.com/opensource-finance/mulegraph/internal/repository"
	"github.com/opensource-finance/mulegraph/internal/worker"
)

func serveCmd() *cobra.Command {
	var (
		pro   bool
		async bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP batch-analysis service",
		Long:  `Starts the same HTTP service the mulegraph server binary runs, honoring the loaded config file and environment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg := domain.DefaultConfig()
			if pro || viper.GetString("tier") == "pro" {
				cfg = domain.ProConfig()
			}
			overlayServerConfig(cfg)

			repo, err := repository.New(cfg.Repository)
			if err != nil {
				return err
			}
			defer repo.Close()

			cacheImpl, err := cache.New(cfg.Cache)
			if err != nil {
				return err
			}
			defer cacheImpl.Close()

			busImpl, err := bus.New(cfg.EventBus)
			if err != nil {
				return err
			}
			defer busImpl.Close()

			eng, err := engine.New(cfg.Engine, nil)
			if err != nil {
				return err
			}

			var asyncWorker *worker.Worker
			if async || cfg.Tier == domain.TierPro {
				asyncWorker = worker.NewWorker(busImpl, repo, cacheImpl, eng)
				if err := asyncWorker.Start(worker.Config{}); err != nil {
					slog.Error("failed to start async worker", "error", err)
				}
			}

			srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, eng, version)

			go func() {
				if err := srv.Start(); err != nil && err != http.ErrServerClosed {
					slog.Error("server failed", "error", err)
					os.Exit(1)
				}
			}()

			slog.Info("mulegraphctl serve is ready",
				"host", cfg.Server.Host,
				"port", cfg.Server.Port,
				"tier", cfg.Tier,
			)

			<-ctx.Done()
			slog.Info("shutting down...")

			if asyncWorker != nil {
				_ = asyncWorker.Stop()
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().BoolVar(&pro, "pro", false, "use Pro tier defaults (Postgres, Redis, NATS)")
	cmd.Flags().BoolVar(&async, "async", false, "start the background worker alongside the HTTP server")

	return cmd
}

func overlayServerConfig(cfg *domain.Config) {
	if h := viper.GetString("server.host"); h != "" {
		cfg.Server.Host = h
	}
	if p := viper.GetInt("server.port"); p != 0 {
		cfg.Server.Port = p
	}
}
