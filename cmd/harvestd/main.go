// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command harvestd starts the harvest Resource Surface: an HTTP server
// exposing session creation, the one-shot Workflow Orchestrator, and
// the Completed-Session Cache under /v1/harvest.
//
// Usage:
//
//	harvestd -config ./harvestd.yaml
//	harvestd -addr :9090
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/oscaromsn/harvest/internal/api"
	"github.com/oscaromsn/harvest/internal/cache"
	"github.com/oscaromsn/harvest/internal/config"
	"github.com/oscaromsn/harvest/internal/llmclient"
	"github.com/oscaromsn/harvest/internal/orchestrator"
	"github.com/oscaromsn/harvest/internal/session"
)

func main() {
	configPath := flag.String("config", "", "path to harvestd YAML config (optional)")
	addr := flag.String("addr", "", "override server.addr from config")
	debug := flag.Bool("debug", false, "enable debug-level logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("harvestd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	sessions := session.New(cfg.SessionOptions(), logger.With("component", "session_manager"))
	defer sessions.Stop()

	shutdownTelemetry, err := setupTelemetry(context.Background(), sessions)
	if err != nil {
		logger.Warn("telemetry setup failed, continuing without tracing/metrics export", "error", err)
		shutdownTelemetry = func(context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	orch := orchestrator.New(sessions)

	var cacheMgr *cache.Manager
	if cfg.Cache.Dir != "" {
		mgr, err := cache.New(cfg.Cache.Dir)
		if err != nil {
			return fmt.Errorf("opening completed-session cache: %w", err)
		}
		defer mgr.Close()
		cacheMgr = mgr
	}

	handlers := api.NewHandlers(sessions, orch, cacheMgr, logger.With("component", "api"))

	if llmCfg := cfg.LLMClientConfig(); llmCfg.Provider != "" {
		client, err := llmclient.New(llmCfg, logger.With("component", "llmclient"))
		if err != nil {
			logger.Warn("LLM collaborator unavailable, continuing with heuristics only", "error", err)
		} else {
			handlers.Selector = client
			handlers.Confirmer = client
			logger.Info("LLM collaborator configured", "provider", llmCfg.Provider, "model", llmCfg.Model)
		}
	}

	engine := api.NewEngine(handlers)
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("harvestd listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	logger.Info("harvestd stopped")
	return nil
}
