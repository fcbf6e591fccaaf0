package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"go-membership/httpapi"
	"go-membership/scheduler"
)

func newServeCmd() *cobra.Command {
	var serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run scheduled sweeps",
		Args:  cobra.NoArgs,
		RunE:  withApp(runServe),
	}

	serveCmd.Flags().StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "HTTP listen address")
	serveCmd.Flags().StringVar(&cfg.SweepSchedule, "sweep-schedule", cfg.SweepSchedule, "Cron schedule for global sweeps (disabled when empty)")
	return serveCmd
}

func runServe(ctx context.Context, a *app, args []string) error {
	if err := a.store.Migrate(ctx); err != nil {
		return err
	}
	if _, err := a.engine.SyncPublicCommunity(ctx); err != nil {
		return err
	}

	var sweeps *scheduler.Scheduler
	if cfg.SweepSchedule != "" {
		var err error
		sweeps, err = scheduler.New(a.engine, cfg.SweepSchedule, a.logger)
		if err != nil {
			return err
		}
		sweeps.Start()
		a.logger.Info("sweep schedule started", "schedule", cfg.SweepSchedule)
	}

	gin.SetMode(gin.ReleaseMode)
	var srv = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewHandler(a.engine, a.logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var errCh = make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Set up signal handling for graceful shutdown
	var sigCh = make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var serveErr error
	select {
	case <-sigCh:
		a.logger.Info("shutting down")
	case err, ok := <-errCh:
		if ok {
			serveErr = fmt.Errorf("http server failed: %w", err)
		}
	}

	var shutdownCtx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http server shutdown failed", "error", err)
	}
	if sweeps != nil {
		sweeps.Stop(shutdownCtx)
	}

	return serveErr
}
