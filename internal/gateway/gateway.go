// Gateway construction and lifecycle.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/streamfix/delta-gateway/internal/config"
	"github.com/streamfix/delta-gateway/internal/monitoring"
	"github.com/streamfix/delta-gateway/internal/upstream"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Gateway is the reverse-proxy adapter between OpenAI-style clients and the
// upstream chat provider.
type Gateway struct {
	cfg       *config.Config
	admission *AdmissionController
	upstream  *upstream.Client
	metrics   *monitoring.MetricsCollector
	tracker   *monitoring.Tracker

	httpServer *http.Server
}

// New creates a gateway from config.
func New(cfg *config.Config) *Gateway {
	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{
		Enabled:     cfg.Monitoring.Enabled,
		LogPath:     cfg.Monitoring.LogPath,
		LogToStdout: cfg.Monitoring.LogToStdout,
	})
	if err != nil {
		log.Warn().Err(err).Msg("telemetry disabled: tracker init failed")
		tracker, _ = monitoring.NewTracker(monitoring.TelemetryConfig{})
	}

	g := &Gateway{
		cfg:       cfg,
		admission: NewAdmissionController(cfg.Limits.MaxConcurrent),
		upstream:  upstream.NewClient(cfg.Upstream, cfg.ModelsCache.TTL),
		metrics:   monitoring.NewMetricsCollector(),
		tracker:   tracker,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", g.handleRoot)

	g.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return g
}

// Handler exposes the root handler, mainly for tests.
func (g *Gateway) Handler() http.Handler {
	return http.HandlerFunc(g.handleRoot)
}

// Start begins serving. It blocks until the server stops.
func (g *Gateway) Start() error {
	g.tracker.RecordInit(buildInitEvent(g.cfg))
	log.Info().
		Int("port", g.cfg.Server.Port).
		Str("upstream", g.cfg.Upstream.BaseURL).
		Int("max_concurrent", g.cfg.Limits.MaxConcurrent).
		Msg("gateway listening")
	return g.httpServer.ListenAndServe()
}

// Shutdown stops the server, waiting for in-flight requests.
func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.httpServer.Shutdown(ctx)
}

func buildInitEvent(cfg *config.Config) *monitoring.InitEvent {
	return &monitoring.InitEvent{
		Timestamp:            time.Now(),
		Event:                "gateway_init",
		ServerPort:           cfg.Server.Port,
		ServerReadTimeoutMs:  cfg.Server.ReadTimeout.Milliseconds(),
		ServerWriteTimeoutMs: cfg.Server.WriteTimeout.Milliseconds(),
		UpstreamBaseURL:      cfg.Upstream.BaseURL,
		MaxConcurrent:        cfg.Limits.MaxConcurrent,
		StreamTimeoutMs:      cfg.Limits.StreamTimeout.Milliseconds(),
		RetryMaxAttempts:     cfg.Upstream.Retry.MaxAttempts,
	}
}
