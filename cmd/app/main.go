package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fidoochat/internal/api"
	"fidoochat/internal/app"
	"fidoochat/internal/config"
	"fidoochat/internal/logging"
	"fidoochat/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if !cfg.Server.Loopback() {
		log.Warn("listening beyond loopback: every client acts as the signed-in user", zap.String("addr", cfg.Server.Port))
	}

	server := api.NewServer(a.Feed, a.Session, a.Composer, a.Login, log)

	sub := a.Feed.Subscribe()
	defer sub.Cancel()

	renderer := worker.NewFeedRenderer(sub, a.Session, server, server, log)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return renderer.Start(gctx)
	})

	g.Go(func() error {
		log.Info("server starting", zap.String("addr", cfg.Server.Port), zap.String("transport", cfg.Feed.Transport))
		return server.Start(cfg.Server.Port)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
