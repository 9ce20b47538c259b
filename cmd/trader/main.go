// Package main runs the trading service: the tick loop, the calendar jobs
// and the HTTP endpoints for health, metrics and account views.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"solana-trader/internal/app"
	"solana-trader/internal/config"
)

func main() {
	// Variables already set in the environment win over .env.
	_ = godotenv.Load()

	configPath := flag.String("config", envOr("TRADER_CONFIG", "config.yaml"), "Path to YAML config")
	httpAddr := flag.String("http-addr", "", "Override HTTP listen address (host:port)")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	textLogs := flag.Bool("text-logs", false, "Log as text instead of JSON")
	flag.Parse()

	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if *textLogs {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("start trader")
	}
	defer a.Close()

	logger.WithFields(logrus.Fields{
		"mode":     cfg.Execution.Mode,
		"storage":  cfg.Storage.Backend,
		"feed":     cfg.Discovery.Kind,
		"interval": cfg.Orchestrator.TickInterval.String(),
	}).Info("trader starting")

	// Channel to signal completion
	done := make(chan struct{})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig.String()).Info("initiating graceful shutdown")
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.WithField("signal", sig.String()).Warn("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	addr := cfg.HTTP.Addr()
	if *httpAddr != "" {
		addr = *httpAddr
	}
	go func() {
		if err := a.Serve(ctx, addr); err != nil {
			logger.WithError(err).Error("http server")
		}
	}()

	err = a.Run(ctx)
	close(done)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("trader stopped")
	}
	logger.Info("shutdown complete")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
