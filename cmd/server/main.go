package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/programme-lv/streaks/app"
	"github.com/programme-lv/streaks/conf"
	"github.com/programme-lv/streaks/logger"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := conf.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger.New(os.Stdout, cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		slog.Error("failed to build app", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Worker.Run(ctx)
	})
	g.Go(func() error {
		slog.Info("starting server", "address", cfg.HttpAddr, "version", app.Version)
		return a.Http.Start(ctx, cfg.HttpAddr)
	})
	a.Scheduler.Start()

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
