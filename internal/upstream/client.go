// Package upstream provides the client for the single upstream chat provider.
//
// FILES:
//   - client.go: resilient fetch with retry, backoff, and response classification
//   - models.go: TTL-cached model list
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/streamfix/delta-gateway/internal/config"
	"github.com/streamfix/delta-gateway/internal/utils"
)

// verdict is the outcome of classifying one upstream reply.
// Explicit result values drive the retry loop instead of error-based control flow.
type verdict int

const (
	verdictOK verdict = iota
	verdictRetryable
)

// FetchError aggregates diagnostics after all attempts are exhausted.
type FetchError struct {
	Attempts   int
	LastStatus int
	Body       string // first MaxErrorBodyLen bytes of the last reply
	Headers    http.Header
	cause      error
}

func (e *FetchError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("upstream fetch failed after %d attempts: %v", e.Attempts, e.cause)
	}
	return fmt.Sprintf("upstream fetch failed after %d attempts, last status %d", e.Attempts, e.LastStatus)
}

func (e *FetchError) Unwrap() error { return e.cause }

// Client issues HTTP calls to the upstream chat provider.
type Client struct {
	baseURL    string
	chatPath   string
	modelsPath string
	policy     config.RetryConfig
	httpClient *http.Client

	models *modelsCache
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// NewClient creates an upstream client from the gateway config.
func NewClient(cfg config.UpstreamConfig, cacheTTL time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		chatPath:   cfg.ChatPath,
		modelsPath: cfg.ModelsPath,
		policy:     cfg.Retry,
		// No client-level timeout: the fetch deadline is the retry policy's,
		// and streaming bodies outlive any sane fixed timeout.
		httpClient: &http.Client{},
	}
	c.models = newModelsCache(cacheTTL)

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ChatURL returns the upstream chat completion endpoint.
func (c *Client) ChatURL() string { return c.baseURL + c.chatPath }

// Fetch POSTs body to the chat endpoint with the client's retry policy.
// One deadline covers all attempts combined; it is armed before attempt 1 and
// never reset. A reply is retried only when it looks transient: an HTML error
// page (gateway/CDN interstitial) or a plain 500. Anything else, including
// other 4xx/5xx statuses, is returned to the caller as-is.
//
// Attempts is the number of attempts actually made, for telemetry.
func (c *Client) Fetch(ctx context.Context, bearer string, body []byte) (resp *http.Response, attempts int, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.policy.Timeout)

	resp, attempts, err = c.fetchWithRetry(ctx, bearer, body)
	if err != nil {
		cancel()
		return nil, attempts, err
	}

	// The body is still being read after Fetch returns; tie the deadline's
	// cancel to body close so the in-flight read is aborted if it fires.
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, attempts, nil
}

func (c *Client) fetchWithRetry(ctx context.Context, bearer string, body []byte) (*http.Response, int, error) {
	var lastStatus int
	var lastBody string
	var lastHeaders http.Header
	var lastErr error

	for attempt := 0; attempt < c.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt - 1)
			log.Debug().
				Int("attempt", attempt+1).
				Dur("backoff", delay).
				Msg("upstream: retrying after transient failure")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, attempt, &FetchError{Attempts: attempt, LastStatus: lastStatus, Body: lastBody, Headers: lastHeaders, cause: ctx.Err()}
			}
		}

		resp, err := c.send(ctx, bearer, body)
		if err != nil {
			// Network-level failure or cancellation: retry unless final attempt.
			lastErr = err
			if ctx.Err() != nil {
				return nil, attempt + 1, &FetchError{Attempts: attempt + 1, LastStatus: lastStatus, Body: lastBody, Headers: lastHeaders, cause: ctx.Err()}
			}
			continue
		}

		if c.classify(resp) == verdictOK {
			return resp, attempt + 1, nil
		}

		// Transient reply. Buffer the body once for diagnostics so no
		// already-read bytes are discarded silently, then retry.
		lastStatus = resp.StatusCode
		lastHeaders = resp.Header
		lastBody = readBodySnippet(resp)
		lastErr = nil
		log.Warn().
			Int("attempt", attempt+1).
			Int("status", resp.StatusCode).
			Str("content_type", resp.Header.Get("Content-Type")).
			Msg("upstream: transient reply")
	}

	return nil, c.policy.MaxAttempts, &FetchError{
		Attempts:   c.policy.MaxAttempts,
		LastStatus: lastStatus,
		Body:       lastBody,
		Headers:    lastHeaders,
		cause:      lastErr,
	}
}

// send issues one POST attempt to the chat endpoint.
func (c *Client) send(ctx context.Context, bearer string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ChatURL(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("url", c.ChatURL()).Msg("upstream request failed")
		return nil, err
	}
	return resp, nil
}

// classify decides whether a reply is worth retrying.
// Transient: an HTML error page, or status exactly 500. Everything else —
// any 2xx, any 4xx, and 5xx other than plain 500 — is final.
func (c *Client) classify(resp *http.Response) verdict {
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		return verdictRetryable
	}
	if resp.StatusCode == http.StatusInternalServerError {
		return verdictRetryable
	}
	return verdictOK
}

// backoff returns baseDelay × multiplier^attemptIndex.
func (c *Client) backoff(attemptIndex int) time.Duration {
	d := float64(c.policy.BaseDelay) * math.Pow(c.policy.BackoffMultiplier, float64(attemptIndex))
	return time.Duration(d)
}

// readBodySnippet drains and closes the reply body, keeping the first
// MaxErrorBodyLen bytes for diagnostics.
func readBodySnippet(resp *http.Response) string {
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, config.MaxErrorBodyLen+1))
	if err != nil {
		return ""
	}
	return utils.Truncate(string(data), config.MaxErrorBodyLen)
}

// IsTimeout reports whether err was caused by the fetch deadline.
func IsTimeout(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return errors.Is(fe.cause, context.DeadlineExceeded)
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// cancelOnClose releases the fetch deadline when the response body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
