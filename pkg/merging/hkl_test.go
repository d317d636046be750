package merging

import (
	"bytes"
	"strings"
	"testing"
)

// TestWriteHKL verifies the fixed-width output byte for byte: lines
// reordered onto ascending indices, negative indices padded, and the
// zero terminator at the end.
func TestWriteHKL(t *testing.T) {
	table := &Table{Entries: []Entry{
		{H: 1, K: 2, L: 3, Rank: 1, Proxy: 100, Sigma: 57.74, Redundancy: 3},
		{H: -1, K: -12, L: 0, Rank: 2, Proxy: 66.67, Sigma: 3.5, Redundancy: 2},
	}}

	var buf bytes.Buffer
	if err := WriteHKL(&buf, table); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}

	want := "  -1 -12   0   66.67    3.50\n" +
		"   1   2   3  100.00   57.74\n" +
		"   0   0   0    0.00    0.00\n"
	if got := buf.String(); got != want {
		t.Errorf("Expected:\n%q\ngot:\n%q", want, got)
	}
	if table.Entries[0].H != 1 {
		t.Error("Expected the table itself to stay in rank order")
	}
}

// TestWriteHKLOverflow verifies that indices outside the 4-column range
// are rejected instead of corrupting the fixed-width layout.
func TestWriteHKLOverflow(t *testing.T) {
	for _, e := range []Entry{
		{H: 10000},
		{K: -1000},
		{L: 99999},
	} {
		table := &Table{Entries: []Entry{e}}
		if err := WriteHKL(&bytes.Buffer{}, table); err == nil {
			t.Errorf("Expected an overflow error for %+v", e)
		}
	}
}

// TestReadHKL verifies the round trip: entries come back in canonical
// file order, and parsing stops at the terminator.
func TestReadHKL(t *testing.T) {
	table := &Table{Entries: []Entry{
		{H: 1, K: 2, L: 3, Proxy: 100, Sigma: 57.74},
		{H: -1, K: -12, L: 0, Proxy: 66.67, Sigma: 3.5},
	}}
	var buf bytes.Buffer
	if err := WriteHKL(&buf, table); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	buf.WriteString("   9   9   9   10.00    1.00\n") // after the terminator

	entries, err := ReadHKL(&buf)
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries before the terminator, got %d", len(entries))
	}

	e := entries[0]
	if e.H != -1 || e.K != -12 || e.L != 0 || e.Proxy != 66.67 || e.Sigma != 3.5 {
		t.Errorf("Unexpected first entry %+v", e)
	}
	e = entries[1]
	if e.H != 1 || e.K != 2 || e.L != 3 || e.Rank != 0 || e.Proxy != 100 || e.Sigma != 57.74 {
		t.Errorf("Unexpected second entry %+v", e)
	}
}

// TestReadHKLErrors verifies the malformed-input paths.
func TestReadHKLErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"short line", "   1   2   3  100.00\n"},
		{"bad index", "   a   2   3  100.00   57.74\n"},
		{"bad float", "   1   2   3  1x0.00   57.74\n"},
	}
	for _, tt := range tests {
		if _, err := ReadHKL(strings.NewReader(tt.in)); err == nil {
			t.Errorf("%s: expected an error", tt.name)
		}
	}
}

// TestReadHKLBlankLines verifies that empty lines are tolerated.
func TestReadHKLBlankLines(t *testing.T) {
	in := "   1   2   3  100.00   57.74\n" +
		"\n" +
		"   0   0   0    0.00    0.00\n"
	entries, err := ReadHKL(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected 1 entry, got %d", len(entries))
	}
}
