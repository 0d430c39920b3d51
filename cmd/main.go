// delta-gateway - reverse proxy that re-normalizes cumulative streaming deltas.
//
// Forwards OpenAI-style chat-completion requests to a single upstream
// provider, retries transient upstream failures, and rewrites the provider's
// cumulative streaming content into true incremental deltas on the way back.
package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/streamfix/delta-gateway/internal/config"
	"github.com/streamfix/delta-gateway/internal/gateway"
)

const shutdownGrace = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// Optional .env for local development; ignore absence.
	_ = godotenv.Load()

	setupLogging(*debug, os.Stderr)
	// net/http server errors go through the same sink.
	stdlog.SetOutput(log.Logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	gw := gateway.New(cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatal().Err(err).Msg("server failed")
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := gw.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("shutdown did not complete cleanly")
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// No config file: defaults plus the upstream URL from the environment.
	cfg := config.Default()
	cfg.Upstream.BaseURL = os.Getenv("UPSTREAM_BASE_URL")
	if cfg.Upstream.BaseURL == "" {
		return nil, fmt.Errorf("either -config or UPSTREAM_BASE_URL is required")
	}
	return cfg, nil
}
