// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/savi-ml/savid/internal/api"
	"github.com/savi-ml/savid/internal/config"
	"github.com/savi-ml/savid/internal/inference"
	savilog "github.com/savi-ml/savid/internal/log"
	"github.com/savi-ml/savid/internal/metrics"
	"github.com/savi-ml/savid/internal/propagate"
	"github.com/savi-ml/savid/internal/session"
	"golang.org/x/sync/errgroup"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

// maskURL removes user info from a URL string for safe logging.
func maskURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	return parsedURL.String()
}

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Configure logger with safe defaults until config is loaded
	savilog.Configure(savilog.Config{
		Level:   "info",
		Service: "savid",
		Version: version,
	})
	logger := savilog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewLoader(*configPath, version).Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
	}
	if cfg.InferenceBase == "" {
		logger.Fatal().
			Str("event", "config.load_failed").
			Msg("inference engine base URL is required (SAVI_INFERENCE_BASE)")
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.ListenAddr).
		Msg("starting savid")
	logger.Info().Msgf("→ Inference engine: %s", maskURL(cfg.InferenceBase))
	logger.Info().Msgf("→ Segments dir: %s", cfg.SegmentsDir)
	logger.Info().Msgf("→ Data dir: %s", cfg.DataDir)
	if cfg.MetricsAddr != "" {
		logger.Info().Msgf("→ Metrics: %s", cfg.MetricsAddr)
	}

	recorder := metrics.Recorder{}
	engine := inference.New(cfg.InferenceBase)
	registry := session.NewRegistry(recorder)
	runner := propagate.NewRunner(ctx, propagate.Deps{
		Logger:      savilog.WithComponent("runner"),
		Engine:      engine,
		Registry:    registry,
		Metrics:     recorder,
		SegmentsDir: cfg.SegmentsDir,
	})
	streamer := &propagate.Streamer{
		Engine:   engine,
		Boundary: cfg.Boundary,
		Metrics:  recorder,
	}

	srv := api.New(cfg, api.Deps{
		Registry: registry,
		Runner:   runner,
		Streamer: streamer,
	})

	apiServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, runCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("event", "api.listen").Str("addr", cfg.ListenAddr).Msg("API server listening")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str("event", "metrics.listen").Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		logger.Info().Str("event", "shutdown").Msg("shutting down")
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("api server shutdown incomplete")
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("metrics server shutdown incomplete")
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "daemon.failed").
			Msg("daemon failed")
	}

	logger.Info().Msg("server exiting")
}
