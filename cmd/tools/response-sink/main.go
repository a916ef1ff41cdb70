// Package main runs a local stand-in for the pre-signed response URL.
//
// The sink accepts custom resource responses on PUT /*, decodes and logs
// them, and keeps them in memory so they can be inspected on
// GET /responses. Point an event's ResponseURL at the sink to exercise a
// custom resource end to end without CloudFormation:
//
//	go run ./cmd/tools/response-sink
//	cat event.json | go run ./cmd/custom-resource
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"cfnresponse/internal/config"
	"cfnresponse/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: types.ParseLogLevel(cfg.LogLevel),
	}))
	logger.Info("response sink starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"port", cfg.Sink.Port,
	)

	sink := NewSink(logger)
	addr := ":" + cfg.Sink.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           sink.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("response sink stopped cleanly", "received", sink.Count())
	return nil
}
