// Command bookblend-server runs the BookBlend HTTP API.
//
// Configuration comes from config.yaml and BOOKBLEND_ environment
// variables; see pkg/config for the full list of settings.
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

	"github.com/bookblend-dev/bookblend/pkg/blend"
	"github.com/bookblend-dev/bookblend/pkg/config"
	"github.com/bookblend-dev/bookblend/pkg/feed"
	"github.com/bookblend-dev/bookblend/pkg/hardcover"
	"github.com/bookblend-dev/bookblend/pkg/httpcache"
	"github.com/bookblend-dev/bookblend/pkg/insight"
	"github.com/bookblend-dev/bookblend/pkg/library"
	"github.com/bookblend-dev/bookblend/pkg/server"
	"github.com/bookblend-dev/bookblend/pkg/userinfo"
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

	logger := buildLogger(cfg.Logging)
	slog.SetDefault(logger)

	httpCache, err := buildCache(cfg.Cache)
	if err != nil {
		logger.Warn("cache unavailable, running without HTTP cache", "error", err)
	}

	feedOpts := []feed.Option{feed.WithLogger(logger)}
	userOpts := []userinfo.Option{userinfo.WithLogger(logger)}
	if httpCache != nil {
		feedOpts = append(feedOpts, feed.WithHTTPCache(httpCache))
		userOpts = append(userOpts, userinfo.WithHTTPCache(httpCache))
	}
	users := userinfo.New(userOpts...)
	libraries := library.NewBuilder(feed.New(feedOpts...), library.WithLogger(logger))

	blendOpts := []blend.Option{
		blend.WithLogger(logger),
		blend.WithUserSource(users),
		blend.WithTuning(cfg.Tuning()),
	}
	if cfg.Keys.OpenAI != "" {
		blendOpts = append(blendOpts, blend.WithGenreSource(insight.New(cfg.Keys.OpenAI, insight.WithLogger(logger))))
	} else {
		logger.Info("no OpenAI key configured, genre insights disabled")
	}
	scorer := blend.New(libraries, blendOpts...)

	serverOpts := []server.Option{server.WithLogger(logger), server.WithAPIKey(cfg.Keys.Service)}
	if cfg.Keys.Hardcover != "" {
		serverOpts = append(serverOpts, server.WithTagSource(hardcover.New(cfg.Keys.Hardcover, hardcover.WithLogger(logger))))
	}
	api := server.New(libraries, users, scorer, serverOpts...)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func buildCache(cfg config.CacheConfig) (*httpcache.Cache, error) {
	if cfg.Dir != "" {
		return httpcache.NewWithPath(cfg.TTL, cfg.Dir)
	}
	return httpcache.New(cfg.TTL)
}
