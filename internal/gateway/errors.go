// Error taxonomy and response rendering.
//
// DESIGN: Every failure crossing the request boundary is classified into one
// of five error types and rendered as the standard JSON error body. Raw
// transport errors never reach the client. Once streaming has started the
// HTTP status is committed, so mid-stream failures become in-band error
// records instead (see stream.go).
package gateway

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/streamfix/delta-gateway/internal/config"
	"github.com/streamfix/delta-gateway/internal/utils"
)

// ErrorType classifies a request failure.
type ErrorType string

const (
	ErrTimeout    ErrorType = "timeout_error"
	ErrNetwork    ErrorType = "network_error"
	ErrAuth       ErrorType = "auth_error"
	ErrRateLimit  ErrorType = "rate_limit_error"
	ErrValidation ErrorType = "validation_error"
)

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error     bool      `json:"error"`
	ErrorType ErrorType `json:"error_type"`
	Message   string    `json:"message"`
}

// writeError renders the standard error body with the given status.
func (g *Gateway) writeError(w http.ResponseWriter, errType ErrorType, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	if errType == ErrRateLimit {
		w.Header().Set("Retry-After", strconv.Itoa(config.RetryAfterHint))
	}
	w.WriteHeader(status)

	data, err := utils.MarshalNoEscape(errorBody{Error: true, ErrorType: errType, Message: msg})
	if err != nil {
		log.Error().Err(err).Msg("failed to encode error body")
		return
	}
	_, _ = w.Write(data)
}

// statusFor maps an error type to its HTTP status.
func statusFor(errType ErrorType) int {
	switch errType {
	case ErrAuth:
		return http.StatusUnauthorized
	case ErrValidation:
		return http.StatusBadRequest
	case ErrRateLimit:
		return http.StatusTooManyRequests
	default:
		// timeout_error and network_error surface as 500 at the boundary.
		return http.StatusInternalServerError
	}
}
