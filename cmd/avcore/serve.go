package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/avcore/internal/health"
	"github.com/zsiec/avcore/internal/pipeline"
	"github.com/zsiec/avcore/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var withTone bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve health, metrics and the container registry over HTTP",
		Long: "Serve health, metrics and the container registry over HTTP.\n" +
			"With --tone, a tone job runs alongside and its containers show up in the registry.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, withTone)
		},
	}
	cmd.Flags().BoolVar(&withTone, "tone", false, "run the configured tone job while serving")
	return cmd
}

func (a *app) serve(ctx context.Context, withTone bool) error {
	if !a.cfg.Server.Enabled {
		return fmt.Errorf("server is disabled in the configuration")
	}

	store, client, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			a.log.WithError(err).Error("Failed to close container registry")
		}
	}()

	engine := a.engine()
	healthMgr := health.NewManager(a.log)
	if client != nil {
		healthMgr.Register(health.NewRedisChecker(client, a.log))
	}
	healthMgr.Register(health.NewRegistryChecker(store))
	healthMgr.Register(a.engineChecker(engine))

	srv := server.New(&a.cfg.Server, a.log, store, healthMgr, server.WithMetrics(&a.cfg.Metrics))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})

	if withTone {
		runner, err := pipeline.New(&a.cfg.Pipeline, engine, pipeline.Options{
			Logger: a.log,
			Store:  store,
			Coder:  a.cfg.Coder,
			Muxer:  a.cfg.Muxer,
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			// A finished job leaves the server running.
			_, err := runner.Run(gctx)
			return err
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	a.log.Info("Server shutdown complete")
	return nil
}
