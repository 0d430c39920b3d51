// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by both gateway/ and monitoring/ packages.
// Defined here ONCE to avoid duplication and circular imports.
package monitoring

import "time"

// RequestEvent captures one request through the gateway.
type RequestEvent struct {
	RequestID        string    `json:"request_id"`
	Timestamp        time.Time `json:"timestamp"`
	Method           string    `json:"method"`
	Path             string    `json:"path"`
	ClientIP         string    `json:"client_ip"`
	Model            string    `json:"model,omitempty"`
	Streaming        bool      `json:"streaming"`
	RequestBodySize  int       `json:"request_body_size"`
	ResponseBodySize int       `json:"response_body_size"`
	StatusCode       int       `json:"status_code"`
	FetchAttempts    int       `json:"fetch_attempts,omitempty"`
	RecordsForwarded int       `json:"records_forwarded,omitempty"`
	Success          bool      `json:"success"`
	ErrorType        string    `json:"error_type,omitempty"`
	Error            string    `json:"error,omitempty"`
	FetchLatencyMs   int64     `json:"fetch_latency_ms"`
	TotalLatencyMs   int64     `json:"total_latency_ms"`
}

// InitEvent captures gateway startup configuration.
type InitEvent struct {
	Timestamp            time.Time `json:"timestamp"`
	Event                string    `json:"event"`
	ServerPort           int       `json:"server_port"`
	ServerReadTimeoutMs  int64     `json:"server_read_timeout_ms"`
	ServerWriteTimeoutMs int64     `json:"server_write_timeout_ms"`
	UpstreamBaseURL      string    `json:"upstream_base_url"`
	MaxConcurrent        int       `json:"max_concurrent"`
	StreamTimeoutMs      int64     `json:"stream_timeout_ms"`
	RetryMaxAttempts     int       `json:"retry_max_attempts"`
}

// TelemetryConfig controls the tracker.
type TelemetryConfig struct {
	Enabled     bool
	LogPath     string
	LogToStdout bool
}
