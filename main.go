// Package main is the entry point for the request limiter demo.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"learn.requestlimiter/api"
	"learn.requestlimiter/config"
	"learn.requestlimiter/types"
)

// main loads the configuration, builds one manager per limiter and sends a burst of requests
// for a single user through the selected limiter, printing every decision.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	configPath := flag.String("config", "config.yaml", "Path to the configuration file")
	logLevelStr := flag.String("log-level", "", "Logging level (trace, debug, info, warn, error); overrides log_level from the config file")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	limiterKey := flag.String("limiter", "", "Limiter key to use; defaults to the first configured limiter")
	userID := flag.String("user", "user1", "User id to send requests for")
	requests := flag.Int("requests", 5, "Number of requests to send")
	interval := flag.Duration("interval", 10*time.Millisecond, "Delay between requests")
	flag.Parse()

	cfgFile, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config_path", *configPath).Msg("Application startup failed: Error loading configuration")
	}

	level := cfgFile.LogLevel
	if *logLevelStr != "" {
		level = *logLevelStr
	}
	if level == "" {
		level = "info"
	}
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Fatal().Err(err).Str("log_level", level).Msg("Invalid log level provided")
	}
	zerolog.SetGlobalLevel(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	managers, closer, err := api.NewManagersFromConfig(ctx, cfgFile, reg)
	if err != nil {
		log.Fatal().Err(err).Str("config_path", *configPath).Msg("Application startup failed: Error initializing rate limiters from config")
	}
	defer closer.Close()

	key := *limiterKey
	if key == "" {
		key = cfgFile.Limiters[0].Key
	}
	manager, ok := managers[key]
	if !ok {
		log.Error().Str("limiter_key", key).Msg("Rate limiter key not found in config")
		return
	}

	if *metricsAddr != "" {
		srv := &http.Server{Addr: *metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})}
		go func() {
			log.Info().Str("address", *metricsAddr).Msg("Starting metrics server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("address", *metricsAddr).Msg("Metrics server stopped")
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	if err := manager.RegisterUser(ctx, *userID); err != nil && !errors.Is(err, types.ErrUserExists) {
		log.Error().Err(err).Str("identifier", *userID).Msg("Failed to register user")
		return
	}

	runDemo(ctx, manager, *userID, *requests, *interval)

	if *metricsAddr != "" {
		log.Info().Msg("Demo finished; serving metrics until interrupted")
		<-ctx.Done()
	}
}

func runDemo(ctx context.Context, m *api.Manager, userID string, requests int, interval time.Duration) {
	for i := 1; i <= requests; i++ {
		d, err := m.MakeRequest(ctx, userID)
		switch {
		case err != nil:
			fmt.Printf("request %d for %s: error: %v\n", i, userID, err)
		case d.Allowed:
			fmt.Printf("request %d for %s: allowed\n", i, userID)
		default:
			fmt.Printf("request %d for %s: rejected, retry in %.3fs\n", i, userID, d.WaitTime.Seconds())
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}

	history, err := m.History(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("identifier", userID).Msg("Failed to read request history")
		return
	}
	fmt.Printf("%s has %d recorded requests\n", userID, len(history))
}
