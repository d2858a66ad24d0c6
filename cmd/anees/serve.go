package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/anees/internal/app"
)

const janitorInterval = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		built, err := app.Build(ctx, cfg, logger)
		if err != nil {
			logger.Error("startup failed", zap.Error(err))
			return err
		}
		defer func() {
			if err := built.Cleanup(); err != nil {
				logger.Warn("cleanup failed", zap.Error(err))
			}
		}()

		return serve(ctx, built, logger)
	},
}

func serve(ctx context.Context, built *app.BuildResult, logger *zap.Logger) error {
	cfg := built.Config
	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           built.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	janitorDone := built.Store.StartJanitor(gctx, janitorInterval)
	g.Go(func() error {
		<-janitorDone
		return nil
	})

	g.Go(func() error {
		logger.Info("server listening", zap.String("addr", cfg.BindAddr), zap.String("generation_backend", built.Backend))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed", zap.Error(err))
			_ = httpServer.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
