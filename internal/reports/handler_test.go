package reports

import (
	"testing"
	"time"
)

func TestParseFormTime(t *testing.T) {
	if _, ok := parseFormTime(""); ok {
		t.Error("empty value should not parse")
	}
	if _, ok := parseFormTime("yesterday"); ok {
		t.Error("garbage should not parse")
	}

	got, ok := parseFormTime("2026-03-01T10:30:00Z")
	if !ok {
		t.Fatal("RFC3339 value should parse")
	}
	want := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("parsed = %v, want %v", got, want)
	}

	// Millisecond epoch timestamps are accepted too.
	got, ok = parseFormTime("1767225600000")
	if !ok {
		t.Fatal("epoch millis should parse")
	}
	if got.UnixMilli() != 1767225600000 {
		t.Errorf("millis = %d", got.UnixMilli())
	}
}
