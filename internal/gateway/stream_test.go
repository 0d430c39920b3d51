package gateway

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func testSession() *streamSession {
	return newStreamSession(1024*1024, 30*time.Second, 4096)
}

// deltaContents extracts the delta content of every event record in a
// response body, in order, skipping the terminal marker and error records.
func deltaContents(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok || payload == "[DONE]" {
			continue
		}
		if v := gjson.Get(payload, "choices.0.delta.content"); v.Exists() {
			out = append(out, v.String())
		}
	}
	return out
}

func countTerminals(body string) int {
	return strings.Count(body, "data: [DONE]\n\n")
}

// blockingBody never produces data; Read blocks until Close.
type blockingBody struct {
	once sync.Once
	done chan struct{}
}

func newBlockingBody() *blockingBody {
	return &blockingBody{done: make(chan struct{})}
}

func (b *blockingBody) Read(p []byte) (int, error) {
	<-b.done
	return 0, errors.New("body closed")
}

func (b *blockingBody) Close() error {
	b.once.Do(func() { close(b.done) })
	return nil
}

// failingBody yields one chunk, then a non-EOF read error.
type failingBody struct {
	data []byte
	read bool
}

func (b *failingBody) Read(p []byte) (int, error) {
	if !b.read {
		b.read = true
		n := copy(p, b.data)
		return n, nil
	}
	return 0, errors.New("connection reset")
}

func (b *failingBody) Close() error { return nil }

func TestStreamSession_CleanCompletion(t *testing.T) {
	upstream := "" +
		`data: {"choices":[{"index":0,"delta":{"content":"Hello"}}]}` + "\n\n" +
		`data: {"choices":[{"index":0,"delta":{"content":"Hello world"}}]}` + "\n\n"

	s := testSession()
	w := httptest.NewRecorder()
	err := s.run(context.Background(), w, io.NopCloser(strings.NewReader(upstream)))
	require.NoError(t, err)

	body := w.Body.String()
	assert.Equal(t, []string{"Hello", " world"}, deltaContents(body))
	assert.Equal(t, 1, countTerminals(body))
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
	assert.Equal(t, 2, s.forwarded)
}

func TestStreamSession_UpstreamDoneForwardedOnce(t *testing.T) {
	upstream := "" +
		`data: {"choices":[{"index":0,"delta":{"content":"Hi"}}]}` + "\n\n" +
		"data: [DONE]\n\n"

	s := testSession()
	w := httptest.NewRecorder()
	err := s.run(context.Background(), w, io.NopCloser(strings.NewReader(upstream)))
	require.NoError(t, err)

	body := w.Body.String()
	assert.Equal(t, []string{"Hi"}, deltaContents(body))
	// The upstream terminal and our end-of-stream handling must not stack.
	assert.Equal(t, 1, countTerminals(body))
}

func TestStreamSession_RecordsAfterDoneDropped(t *testing.T) {
	upstream := "" +
		`data: {"choices":[{"index":0,"delta":{"content":"Hi"}}]}` + "\n\n" +
		"data: [DONE]\n\n" +
		`data: {"choices":[{"index":0,"delta":{"content":"Hi there"}}]}` + "\n\n"

	s := testSession()
	w := httptest.NewRecorder()
	err := s.run(context.Background(), w, io.NopCloser(strings.NewReader(upstream)))
	require.NoError(t, err)

	body := w.Body.String()
	assert.Equal(t, []string{"Hi"}, deltaContents(body))
	assert.Equal(t, 1, countTerminals(body))
	// The terminal marker stays last even when the upstream keeps talking.
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
}

func TestStreamSession_TrailingPartialRecordFlushed(t *testing.T) {
	// No trailing newline: the final record only resolves via flush.
	upstream := `data: {"choices":[{"index":0,"delta":{"content":"tail"}}]}`

	s := testSession()
	w := httptest.NewRecorder()
	err := s.run(context.Background(), w, io.NopCloser(strings.NewReader(upstream)))
	require.NoError(t, err)

	body := w.Body.String()
	assert.Equal(t, []string{"tail"}, deltaContents(body))
	assert.Equal(t, 1, countTerminals(body))
}

func TestStreamSession_IdleTimeout(t *testing.T) {
	s := newStreamSession(1024*1024, 50*time.Millisecond, 4096)
	w := httptest.NewRecorder()

	start := time.Now()
	err := s.run(context.Background(), w, newBlockingBody())
	require.ErrorIs(t, err, errStreamTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	body := w.Body.String()
	assert.Contains(t, body, `"error":true`)
	assert.Contains(t, body, "stream timeout")
	assert.Equal(t, 1, countTerminals(body))
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
}

func TestStreamSession_ReadErrorReportedInBand(t *testing.T) {
	chunk := `data: {"choices":[{"index":0,"delta":{"content":"part"}}]}` + "\n\n"

	s := testSession()
	w := httptest.NewRecorder()
	err := s.run(context.Background(), w, &failingBody{data: []byte(chunk)})
	require.Error(t, err)
	assert.NotErrorIs(t, err, errStreamTimeout)

	body := w.Body.String()
	assert.Equal(t, []string{"part"}, deltaContents(body))
	assert.Contains(t, body, `"error":true`)
	assert.Equal(t, 1, countTerminals(body))
}

func TestStreamSession_MalformedRecordForwardedVerbatim(t *testing.T) {
	upstream := "" +
		"data: not-json\n\n" +
		`data: {"choices":[{"index":0,"delta":{"content":"ok"}}]}` + "\n\n"

	s := testSession()
	w := httptest.NewRecorder()
	err := s.run(context.Background(), w, io.NopCloser(strings.NewReader(upstream)))
	require.NoError(t, err)

	body := w.Body.String()
	assert.Contains(t, body, "data: not-json\n\n")
	assert.Equal(t, []string{"ok"}, deltaContents(body))
	assert.Equal(t, 1, countTerminals(body))
}

func TestStreamSession_NonEventLinesDropped(t *testing.T) {
	upstream := "" +
		": keep-alive\n" +
		"event: ping\n" +
		`data: {"choices":[{"index":0,"delta":{"content":"x"}}]}` + "\n\n" +
		"data: [DONE]\n\n"

	s := testSession()
	w := httptest.NewRecorder()
	err := s.run(context.Background(), w, io.NopCloser(strings.NewReader(upstream)))
	require.NoError(t, err)

	body := w.Body.String()
	assert.NotContains(t, body, "keep-alive")
	assert.NotContains(t, body, "event: ping")
	assert.Equal(t, []string{"x"}, deltaContents(body))
}
