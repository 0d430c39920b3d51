package gateway

import (
	"bytes"
	"strings"
	"testing"
)

func frameAll(t *testing.T, input []byte, chunkSize int) [][]byte {
	t.Helper()
	f := newLineFramer(1024 * 1024)
	var records [][]byte
	for i := 0; i < len(input); i += chunkSize {
		end := i + chunkSize
		if end > len(input) {
			end = len(input)
		}
		records = append(records, f.Push(input[i:end])...)
	}
	if rec, ok := f.Flush(); ok {
		records = append(records, rec)
	}
	return records
}

func TestLineFramer_ChunkBoundaryIndependence(t *testing.T) {
	stream := []byte("" +
		`data: {"choices":[{"delta":{"content":"a"}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{"content":"ab"}}]}` + "\n\n" +
		": keep-alive comment\n" +
		`data: [DONE]` + "\n")

	want := frameAll(t, stream, len(stream))

	for _, chunkSize := range []int{1, 2, 3, 5, 7, 13, 64} {
		got := frameAll(t, stream, chunkSize)
		if len(got) != len(want) {
			t.Fatalf("chunkSize=%d: got %d records, want %d", chunkSize, len(got), len(want))
		}
		for i := range want {
			if !bytes.Equal(got[i], want[i]) {
				t.Fatalf("chunkSize=%d record %d: got %q, want %q", chunkSize, i, got[i], want[i])
			}
		}
	}
}

func TestLineFramer_PartialRecordRetained(t *testing.T) {
	f := newLineFramer(1024)

	records := f.Push([]byte("data: {\"a\""))
	if len(records) != 0 {
		t.Fatalf("expected no records from partial line, got %d", len(records))
	}
	if f.Pending() == 0 {
		t.Fatal("expected pending bytes after partial line")
	}

	records = f.Push([]byte(":1}\ndata: tail"))
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if string(records[0]) != `data: {"a":1}` {
		t.Fatalf("record = %q", records[0])
	}

	rec, ok := f.Flush()
	if !ok || string(rec) != "data: tail" {
		t.Fatalf("flush = %q, ok=%v", rec, ok)
	}
	if _, ok := f.Flush(); ok {
		t.Fatal("second flush should be empty")
	}
}

func TestLineFramer_ForceSplitOnOverflow(t *testing.T) {
	f := newLineFramer(64)

	long := strings.Repeat("x", 100) // no newline anywhere
	records := f.Push([]byte(long))
	if len(records) != 1 {
		t.Fatalf("expected 1 force-split record, got %d", len(records))
	}
	if string(records[0]) != long {
		t.Fatalf("force-split record lost bytes: len=%d", len(records[0]))
	}
	if f.Pending() != 0 {
		t.Fatalf("buffer not cleared after force-split: %d pending", f.Pending())
	}

	// Complete lines still resolve normally after an overflow.
	records = f.Push([]byte("data: ok\n"))
	if len(records) != 1 || string(records[0]) != "data: ok" {
		t.Fatalf("post-overflow records = %q", records)
	}
}

func TestIsEventRecord(t *testing.T) {
	tests := []struct {
		record string
		want   bool
	}{
		{`data: {"x":1}`, true},
		{`  data: [DONE]  `, true},
		{"", false},
		{": comment", false},
		{"event: ping", false},
		{"data:no-space", false},
	}

	for _, tt := range tests {
		if got := isEventRecord([]byte(tt.record)); got != tt.want {
			t.Errorf("isEventRecord(%q) = %v, want %v", tt.record, got, tt.want)
		}
	}
}
