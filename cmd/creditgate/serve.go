package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mercator-hq/creditgate/pkg/cache"
	"mercator-hq/creditgate/pkg/cli"
	"mercator-hq/creditgate/pkg/config"
	"mercator-hq/creditgate/pkg/server"
	"mercator-hq/creditgate/pkg/telemetry/health"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the cache sweeper and the operations server",
		Long: `Serve opens the configured storage backend and keeps it healthy:

  - expired cache entries are swept on cache.sweep_schedule
  - plan limits are reloaded when the config file changes
  - /metrics, /health, /ready and /version are served on
    telemetry.metrics.listen_address

Serve runs until interrupted.`,
		Example: `  creditgate serve --config creditgate.yaml
  creditgate serve --listen 0.0.0.0:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Telemetry.Metrics.ListenAddress = listen
			}
			return runServe(cmd.Context(), cmd, root, cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "override telemetry.metrics.listen_address")
	return cmd
}

func runServe(parent context.Context, cmd *cobra.Command, root *rootOptions, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := cli.SetupSignalHandler(parent)
	defer stop()

	a, err := newApp(ctx, cfg, cmd.ErrOrStderr(), true)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			a.logger.Error("shutdown error", "error", err)
		}
	}()

	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
	checker.RegisterPinger("storage", a.backend)

	sweeper := cache.NewSweeper(a.cache, cfg.Cache.SweepSchedule, a.metrics.RecordSweep)
	if cfg.Cache.SweepSchedule != "" {
		checker.RegisterCheck("cache_sweeper", func(context.Context) error {
			if !sweeper.IsRunning() {
				return errors.New("sweeper is not running")
			}
			return nil
		})
	}

	g, ctx := errgroup.WithContext(ctx)

	if err := sweeper.Start(ctx); err != nil {
		return err
	}
	defer sweeper.Stop()

	if root.configFile != "" {
		watcher, err := config.NewWatcher(root.configFile, 0, func(c *config.Config) {
			a.limits.Update(c.Credits.PlanLimits())
			a.logger.Info("plan limits reloaded", "plans", len(c.Credits.Plans), "users", len(c.Credits.Users))
		}, a.logger)
		if err != nil {
			return fmt.Errorf("failed to watch config: %w", err)
		}
		g.Go(func() error { return watcher.Watch(ctx) })
	}

	srv := server.New(server.FromConfig(&cfg.Telemetry, a.metrics, checker,
		health.NewVersionInfo(Version, GitCommit, BuildDate)))
	g.Go(func() error { return srv.Start(ctx) })

	a.logger.Info("creditgate serving",
		"backend", a.backend.Name(),
		"address", cfg.Telemetry.Metrics.ListenAddress,
		"sweep_schedule", cfg.Cache.SweepSchedule,
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("creditgate stopped")
	return nil
}
