// Stream session supervision - drives the read/transform/write loop.
//
// DESIGN: One session per streaming response. A reader goroutine feeds raw
// chunks over a channel; the supervisor selects between the next chunk and
// an idle timer that is re-armed after every chunk. Records resolve through
// the framer, pass the event filter, get normalized, and are written
// downstream in resolution order. Every exit path — end-of-stream, idle
// timeout, read error, client disconnect — writes the terminal marker at
// most once and closes the upstream body exactly once.
package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/streamfix/delta-gateway/internal/utils"
)

// terminalRecord is written exactly once before a session ends.
var terminalRecord = []byte("data: [DONE]\n\n")

// errStreamTimeout reports that the idle gap between chunks exceeded the limit.
var errStreamTimeout = errors.New("stream idle timeout")

// streamSession owns the framer and normalizer for one client request.
type streamSession struct {
	framer      *lineFramer
	norm        *deltaNormalizer
	idleTimeout time.Duration
	readSize    int

	forwarded    int
	doneWritten  bool
	lastActivity time.Time
}

func newStreamSession(maxBufferSize int, idleTimeout time.Duration, readSize int) *streamSession {
	return &streamSession{
		framer:       newLineFramer(maxBufferSize),
		norm:         newDeltaNormalizer(),
		idleTimeout:  idleTimeout,
		readSize:     readSize,
		lastActivity: time.Now(),
	}
}

type readResult struct {
	data []byte
	err  error
}

// run consumes the upstream body and writes normalized records to w until
// the stream ends. It returns errStreamTimeout when the idle timer fired,
// the read error for upstream failures, and nil on clean completion or
// client disconnect. The body is always closed before run returns.
func (s *streamSession) run(ctx context.Context, w http.ResponseWriter, body io.ReadCloser) error {
	flusher, canFlush := w.(http.Flusher)
	flush := func() {
		if canFlush {
			flusher.Flush()
		}
	}

	chunks := make(chan readResult, 1)
	go func() {
		defer close(chunks)
		buf := make([]byte, s.readSize)
		for {
			n, err := body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				chunks <- readResult{data: chunk}
			}
			if err != nil {
				chunks <- readResult{err: err}
				return
			}
		}
	}()

	// Closing the body aborts the in-flight read; draining lets the reader
	// goroutine observe the error and exit.
	closed := false
	closeBody := func() {
		if !closed {
			closed = true
			_ = body.Close()
		}
	}
	defer func() {
		closeBody()
		for range chunks {
		}
	}()

	idle := time.NewTimer(s.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case r, ok := <-chunks:
			if !ok {
				// Reader exited without a final error; treat as end-of-stream.
				s.finish(w)
				flush()
				return nil
			}
			if r.err != nil {
				if errors.Is(r.err, io.EOF) {
					s.finish(w)
					flush()
					return nil
				}
				s.fail(w, "upstream stream error")
				flush()
				return r.err
			}

			s.lastActivity = time.Now()
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(s.idleTimeout)

			for _, record := range s.framer.Push(r.data) {
				if err := s.forward(w, record); err != nil {
					log.Debug().Err(err).Msg("client disconnected mid-stream")
					return nil
				}
			}
			flush()

		case <-idle.C:
			closeBody()
			s.fail(w, "stream timeout: no data received from upstream")
			flush()
			return errStreamTimeout

		case <-ctx.Done():
			// Client went away; nothing left to write.
			return nil
		}
	}
}

// forward filters, normalizes, and writes one record. Nothing is written
// after the terminal marker: records an upstream emits past its own [DONE]
// are dropped so the marker stays last on the wire.
func (s *streamSession) forward(w io.Writer, record []byte) error {
	if s.doneWritten || !isEventRecord(record) {
		return nil
	}

	out, isDone := s.norm.Normalize(record)
	if isDone {
		s.writeTerminal(w)
		return nil
	}

	if _, err := w.Write(out); err != nil {
		return err
	}
	s.forwarded++
	return nil
}

// finish flushes the remaining partial record and terminates the stream.
func (s *streamSession) finish(w io.Writer) {
	if record, ok := s.framer.Flush(); ok {
		_ = s.forward(w, record)
	}
	s.writeTerminal(w)
}

// fail writes an in-band error record, then the terminal marker. The HTTP
// status is already committed at this point, so this is the only way to
// report the failure to the client.
func (s *streamSession) fail(w io.Writer, msg string) {
	record, err := utils.MarshalNoEscape(map[string]any{"error": true, "message": msg})
	if err == nil {
		_, _ = w.Write(frameRecord(record))
	}
	s.writeTerminal(w)
}

func (s *streamSession) writeTerminal(w io.Writer) {
	if s.doneWritten {
		return
	}
	s.doneWritten = true
	_, _ = w.Write(terminalRecord)
}
