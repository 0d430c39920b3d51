// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined here.
// This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// ADMISSION CONTROL
// =============================================================================

// DefaultMaxConcurrent is the maximum number of in-flight proxy requests.
// Excess requests are rejected with 429, never queued.
const DefaultMaxConcurrent = 100

// RetryAfterHint is the Retry-After value (seconds) sent on admission rejection.
const RetryAfterHint = 5

// =============================================================================
// UPSTREAM RETRY
// =============================================================================

// DefaultMaxAttempts is the number of upstream fetch attempts before giving up.
const DefaultMaxAttempts = 3

// DefaultBaseDelay is the backoff delay before the first retry.
const DefaultBaseDelay = 500 * time.Millisecond

// DefaultBackoffMultiplier grows the backoff delay per attempt.
const DefaultBackoffMultiplier = 2.0

// DefaultFetchTimeout bounds all attempts of a single fetch combined.
// The clock is armed once, before attempt 1, and is never reset.
const DefaultFetchTimeout = 2 * time.Minute

// MaxErrorBodyLen limits upstream error bodies carried in fetch errors.
const MaxErrorBodyLen = 1000

// =============================================================================
// STREAMING
// =============================================================================

// DefaultMaxBufferSize caps the framer's pending-line buffer (1 MiB).
// An upstream that sends a longer line without a newline gets force-split.
const DefaultMaxBufferSize = 1024 * 1024

// DefaultStreamTimeout is the maximum idle gap between upstream chunks.
const DefaultStreamTimeout = 30 * time.Second

// DefaultReadChunkSize is the per-read buffer for the upstream body.
const DefaultReadChunkSize = 4096

// =============================================================================
// HTTP SERVER
// =============================================================================

// DefaultServerPort is the gateway listen port.
const DefaultServerPort = 8787

// DefaultServerReadTimeout for the HTTP server.
const DefaultServerReadTimeout = 1 * time.Minute

// DefaultServerWriteTimeout for the HTTP server (safe for streaming).
const DefaultServerWriteTimeout = 10 * time.Minute

// MaxRequestBodySize is the maximum allowed request body (50MB).
const MaxRequestBodySize = 50 * 1024 * 1024

// =============================================================================
// MODEL CACHE
// =============================================================================

// DefaultModelsCacheTTL is how long the upstream model list stays fresh.
const DefaultModelsCacheTTL = 5 * time.Minute

// =============================================================================
// RESPONSE COMPRESSION
// =============================================================================

// MinCompressSize is the smallest non-streaming body worth gzipping.
const MinCompressSize = 1024
