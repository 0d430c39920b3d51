// HTTP request handling for the delta gateway.
//
// DESIGN: Main request flow:
//   - handleRoot():       method/path routing for the proxy surface
//   - handleChat():       admission, validation, resilient fetch, relay
//   - handleStreaming():  SSE streaming with delta normalization
//   - handleModels():     TTL-cached model list
//
// Also includes health check and telemetry helpers.
package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/streamfix/delta-gateway/internal/config"
	"github.com/streamfix/delta-gateway/internal/monitoring"
	"github.com/streamfix/delta-gateway/internal/upstream"
	"github.com/streamfix/delta-gateway/internal/utils"
)

// HeaderRequestID lets clients supply their own correlation ID.
const HeaderRequestID = "X-Request-ID"

// handleRoot routes the proxy surface: GET /v1/models, POST anything, 405 otherwise.
func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/health":
		g.handleHealth(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/v1/models":
		g.handleModels(w, r)
	case r.Method == http.MethodPost:
		g.handleChat(w, r)
	default:
		g.writeError(w, ErrValidation, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleHealth returns gateway health status and a metrics snapshot.
func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"time":      time.Now().Format(time.RFC3339),
		"version":   Version,
		"in_flight": g.admission.InFlight(),
		"metrics":   g.metrics.Stats(),
	})
}

// handleModels serves the cached upstream model list.
func (g *Gateway) handleModels(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		g.writeError(w, ErrAuth, "missing bearer token", http.StatusUnauthorized)
		return
	}

	payload, cached, err := g.upstream.Models(r.Context(), token)
	if err != nil {
		log.Warn().Err(err).Msg("models fetch failed")
		g.writeError(w, ErrNetwork, "failed to fetch model list", http.StatusInternalServerError)
		return
	}
	if cached {
		g.metrics.RecordModelsCacheHit()
	} else {
		g.metrics.RecordModelsCacheMiss()
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

// handleChat proxies one chat-completion request.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := getRequestID(r)

	token := bearerToken(r)
	if token == "" {
		g.writeError(w, ErrAuth, "missing bearer token", http.StatusUnauthorized)
		return
	}

	if !g.admission.TryAdmit() {
		g.metrics.RecordAdmissionRejected()
		log.Warn().Str("request_id", requestID).Msg("rejected: concurrency limit reached")
		g.writeError(w, ErrRateLimit, "too many concurrent requests", http.StatusTooManyRequests)
		return
	}
	// Scoped acquisition: the slot is freed on every exit path below.
	defer g.admission.Release()

	log.Debug().
		Str("request_id", requestID).
		Str("token", utils.MaskKey(token)).
		Int64("in_flight", g.admission.InFlight()).
		Msg("chat request admitted")

	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		g.writeError(w, ErrValidation, "failed to read request body", http.StatusBadRequest)
		return
	}

	var req ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		g.writeError(w, ErrValidation, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Model == "" {
		g.writeError(w, ErrValidation, "model is required", http.StatusBadRequest)
		return
	}

	forwardBody, err := req.forwardBody()
	if err != nil {
		g.writeError(w, ErrValidation, "failed to encode upstream body", http.StatusBadRequest)
		return
	}

	ev := &monitoring.RequestEvent{
		RequestID:       requestID,
		Timestamp:       startTime,
		Method:          r.Method,
		Path:            r.URL.Path,
		ClientIP:        r.RemoteAddr,
		Model:           req.Model,
		Streaming:       req.IsStreaming(),
		RequestBodySize: len(body),
	}

	fetchStart := time.Now()
	resp, attempts, err := g.upstream.Fetch(r.Context(), token, forwardBody)
	ev.FetchAttempts = attempts
	ev.FetchLatencyMs = time.Since(fetchStart).Milliseconds()
	g.metrics.RecordFetchRetries(attempts)
	if err != nil {
		errType := ErrNetwork
		if upstream.IsTimeout(err) {
			errType = ErrTimeout
		}
		log.Error().Err(err).Str("request_id", requestID).Int("attempts", attempts).Msg("upstream fetch failed")
		g.finishRequest(ev, statusFor(errType), errType, err.Error())
		g.writeError(w, errType, "upstream request failed", statusFor(errType))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Non-retryable upstream status: surface as a network error, keeping
		// a truncated body for diagnostics.
		snippet := readSnippet(resp.Body, config.MaxErrorBodyLen)
		log.Error().
			Str("request_id", requestID).
			Int("status", resp.StatusCode).
			Str("body", snippet).
			Msg("upstream error response")
		msg := fmt.Sprintf("upstream returned status %d", resp.StatusCode)
		g.finishRequest(ev, http.StatusInternalServerError, ErrNetwork, msg)
		g.writeError(w, ErrNetwork, msg, http.StatusInternalServerError)
		return
	}

	if req.IsStreaming() {
		g.handleStreaming(w, r, resp, ev)
		return
	}
	g.handleNonStreaming(w, r, resp, ev)
}

// handleNonStreaming relays a buffered upstream body, optionally gzipped.
func (g *Gateway) handleNonStreaming(w http.ResponseWriter, r *http.Request, resp *http.Response, ev *monitoring.RequestEvent) {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		g.finishRequest(ev, http.StatusInternalServerError, ErrNetwork, "failed to read upstream body")
		g.writeError(w, ErrNetwork, "failed to read upstream response", http.StatusInternalServerError)
		return
	}

	ev.ResponseBodySize = len(respBody)
	w.Header().Set("Content-Type", "application/json")
	writeMaybeCompressed(w, r, resp.StatusCode, respBody)
	g.finishRequest(ev, resp.StatusCode, "", "")
}

// handleStreaming runs a stream session over the upstream body.
// Headers commit before the first record, so failures past this point are
// reported in-band by the session rather than via the HTTP status.
func (g *Gateway) handleStreaming(w http.ResponseWriter, r *http.Request, resp *http.Response, ev *monitoring.RequestEvent) {
	g.metrics.RecordStream()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	session := newStreamSession(g.cfg.Limits.MaxBufferSize, g.cfg.Limits.StreamTimeout, config.DefaultReadChunkSize)
	err := session.run(r.Context(), w, resp.Body)
	ev.RecordsForwarded = session.forwarded
	g.metrics.RecordRecordsNormalized(session.forwarded)

	switch {
	case err == nil:
		g.finishRequest(ev, http.StatusOK, "", "")
	case err == errStreamTimeout:
		g.metrics.RecordStreamTimeout()
		g.finishRequest(ev, http.StatusOK, ErrTimeout, err.Error())
	default:
		g.finishRequest(ev, http.StatusOK, ErrNetwork, err.Error())
	}
}

// finishRequest completes the telemetry event for a request.
func (g *Gateway) finishRequest(ev *monitoring.RequestEvent, status int, errType ErrorType, errMsg string) {
	ev.StatusCode = status
	ev.ErrorType = string(errType)
	ev.Error = utils.Truncate(errMsg, config.MaxErrorBodyLen)
	ev.Success = errType == ""
	ev.TotalLatencyMs = time.Since(ev.Timestamp).Milliseconds()

	g.metrics.RecordRequest(ev.Success)
	g.tracker.RecordRequest(ev)
}

// bearerToken extracts the bearer token from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

// getRequestID gets or generates a request ID.
func getRequestID(r *http.Request) string {
	if id := r.Header.Get(HeaderRequestID); id != "" {
		return id
	}
	return uuid.New().String()
}

// readSnippet reads at most maxLen bytes from rd.
func readSnippet(rd io.Reader, maxLen int) string {
	data, _ := io.ReadAll(io.LimitReader(rd, int64(maxLen)))
	return string(data)
}
