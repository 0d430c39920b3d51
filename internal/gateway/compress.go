// Non-streaming response compression.
//
// DESIGN: Straight-line glue. Non-streaming JSON bodies are gzipped when the
// client advertises support and the body is big enough to be worth it.
package gateway

import (
	"compress/gzip"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/streamfix/delta-gateway/internal/config"
)

// writeMaybeCompressed writes body, gzipping it when the client sent
// Accept-Encoding: gzip and the body exceeds the size threshold.
func writeMaybeCompressed(w http.ResponseWriter, r *http.Request, status int, body []byte) {
	if len(body) < config.MinCompressSize || !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		w.WriteHeader(status)
		_, _ = w.Write(body)
		return
	}

	w.Header().Set("Content-Encoding", "gzip")
	w.WriteHeader(status)

	gz := gzip.NewWriter(w)
	if _, err := gz.Write(body); err != nil {
		log.Debug().Err(err).Msg("gzip write failed")
	}
	_ = gz.Close()
}
