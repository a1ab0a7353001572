package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"agegate/internal/platform/config"
	"agegate/internal/platform/httpserver"
	"agegate/internal/platform/logger"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// node lifecycle small. Business logic lives in internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	if cfg.UsingDevSigningKey() {
		log.Warn("JWT_SIGNING_KEY not set, using the development key")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("node stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	n, err := buildNode(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer n.Close()

	srv := httpserver.New(cfg.Server.Addr, n.router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting agegate node", "addr", cfg.Server.Addr)
		return httpserver.Run(ctx, srv)
	})
	if n.keeper != nil {
		g.Go(func() error { return ignoreCancel(n.keeper.Start(ctx)) })
	}
	if n.auditWorker != nil {
		g.Go(func() error { return ignoreCancel(n.auditWorker.Run(ctx)) })
	}
	return g.Wait()
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
