// Command exchangesim runs the in-memory exchange simulator
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/xtrntr/energytrade/internal/config"
	"github.com/xtrntr/energytrade/internal/exchangesim"
	"github.com/xtrntr/energytrade/internal/logging"
	"github.com/xtrntr/energytrade/internal/metrics"
)

func main() {
	configPath := flag.String("config", os.Getenv("ENERGY_CONFIG"), "path to YAML config file")
	envFile := flag.String("env-file", ".env", "dotenv file to load")
	addr := flag.String("addr", "", "listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Sim.Addr = *addr
	}

	logger, err := logging.New(os.Stderr, logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Service: "exchangesim"})
	if err != nil {
		slog.Error("configure logging", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	sim := exchangesim.New(cfg.Sim, exchangesim.WithLogger(logger), exchangesim.WithMetrics(m))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// SIGUSR1 toggles a simulated outage
	toggle := make(chan os.Signal, 1)
	signal.Notify(toggle, syscall.SIGUSR1)
	go func() {
		down := false
		for {
			select {
			case <-toggle:
				down = !down
				sim.SetOutage(down)
			case <-ctx.Done():
				return
			}
		}
	}()

	if cfg.Metrics.Addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", m.Handler())
			logger.Info("metrics listening", "addr", cfg.Metrics.Addr)
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	if err := sim.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
