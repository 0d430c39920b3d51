// Stream framing - reassembles newline-delimited records from raw chunks.
//
// DESIGN: The upstream body arrives in arbitrary-sized chunks that split
// records at any byte offset. One growing buffer holds unresolved bytes; on
// each chunk, everything up to the last newline resolves into complete
// records and the final fragment is retained. The buffer is capped so an
// upstream that never sends a newline cannot grow memory unbounded.
package gateway

import "bytes"

// recordPrefix marks lines that carry an event payload. Anything else
// (blank lines, comments) is a framing artifact and is dropped.
var recordPrefix = []byte("data: ")

// lineFramer turns an opaque byte stream into ordered line records.
type lineFramer struct {
	buf     []byte
	maxSize int
}

func newLineFramer(maxSize int) *lineFramer {
	return &lineFramer{maxSize: maxSize}
}

// Push appends a chunk and returns the complete records resolved so far,
// in stream order. Each returned record has its newline delimiter stripped.
//
// If the pending fragment alone exceeds maxSize, it is force-emitted as a
// record rather than retained; an oversized line therefore reaches the
// record filter in pieces instead of exhausting memory.
func (f *lineFramer) Push(chunk []byte) [][]byte {
	f.buf = append(f.buf, chunk...)

	var records [][]byte
	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			break
		}
		records = append(records, append([]byte(nil), f.buf[:i]...))
		f.buf = f.buf[i+1:]
	}

	if len(f.buf) > f.maxSize {
		records = append(records, append([]byte(nil), f.buf...))
		f.buf = f.buf[:0]
	}

	return records
}

// Flush returns the final buffered partial record, if any. Called once at
// end-of-stream so a response that does not end in a newline is not lost.
func (f *lineFramer) Flush() ([]byte, bool) {
	if len(f.buf) == 0 {
		return nil, false
	}
	record := append([]byte(nil), f.buf...)
	f.buf = nil
	return record, true
}

// Pending returns the number of buffered unresolved bytes.
func (f *lineFramer) Pending() int {
	return len(f.buf)
}

// isEventRecord reports whether a record carries an event payload.
func isEventRecord(record []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(record), recordPrefix)
}
