// Delta normalization - rewrites cumulative content into true increments.
//
// DESIGN: The upstream repeats all text generated so far in every chunk's
// delta content field instead of sending only the new suffix. The normalizer
// remembers the last cumulative value per choice index and strips the
// already-sent prefix before forwarding. When the new value does not extend
// the previous one (first event, or an upstream restart) it is forwarded
// whole and becomes the fresh baseline.
//
// Malformed payloads pass through verbatim and leave the baseline untouched,
// so one bad line cannot corrupt subsequent delta computation.
package gateway

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// doneMarker is the terminal sentinel payload of the event protocol.
const doneMarker = "[DONE]"

// deltaNormalizer holds per-stream cumulative state. One per session, never
// shared across sessions.
type deltaNormalizer struct {
	lastFull map[int]string
}

func newDeltaNormalizer() *deltaNormalizer {
	return &deltaNormalizer{lastFull: make(map[int]string)}
}

// Normalize rewrites one event record. The input is a framed line beginning
// with "data: " (possibly with surrounding whitespace); the output is a
// complete wire record `data: <json>\n\n` ready to write downstream.
//
// isDone reports that the record is the upstream's own terminal sentinel,
// which the caller forwards as the session's single terminal marker.
func (n *deltaNormalizer) Normalize(record []byte) (out []byte, isDone bool) {
	payload := bytes.TrimPrefix(bytes.TrimSpace(record), recordPrefix)

	if bytes.Equal(bytes.TrimSpace(payload), []byte(doneMarker)) {
		return nil, true
	}

	if !gjson.ValidBytes(payload) {
		// Verbatim passthrough; baseline untouched.
		return frameRecord(payload), false
	}

	choices := gjson.GetBytes(payload, "choices")
	if !choices.IsArray() {
		return frameRecord(payload), false
	}

	rewritten := payload
	pos := 0
	choices.ForEach(func(_, choice gjson.Result) bool {
		// The logical choice index tracks the payload's own index field when
		// present, falling back to array position.
		i := pos
		if v := choice.Get("index"); v.Exists() {
			i = int(v.Int())
		}
		pos++

		content := choice.Get("delta.content")
		if !content.Exists() {
			return true
		}

		cur := content.String()
		emitted := cur
		if prev := n.lastFull[i]; prev != "" && strings.HasPrefix(cur, prev) {
			emitted = cur[len(prev):]
		}
		n.lastFull[i] = cur

		path := "choices." + strconv.Itoa(pos-1) + ".delta.content"
		if updated, err := sjson.SetBytes(rewritten, path, emitted); err == nil {
			rewritten = updated
		}
		return true
	})

	return frameRecord(rewritten), false
}

// frameRecord wraps a payload as a complete server-sent event record.
func frameRecord(payload []byte) []byte {
	out := make([]byte, 0, len(recordPrefix)+len(payload)+2)
	out = append(out, recordPrefix...)
	out = append(out, payload...)
	out = append(out, '\n', '\n')
	return out
}
