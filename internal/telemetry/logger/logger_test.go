package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

// capture builds a JSON logger writing into the returned buffer.
func capture(t *testing.T, level string) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := New(Config{Level: level, Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return l, &buf
}

// lastRecord decodes the final JSON line in buf.
func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", lines[len(lines)-1], err)
	}
	return rec
}

func TestJSONOutput(t *testing.T) {
	l, buf := capture(t, "info")
	l.Info("document stored", "doc_id", "doc-1", "bytes", 42)

	rec := lastRecord(t, buf)
	if rec["msg"] != "document stored" {
		t.Errorf("msg = %v", rec["msg"])
	}
	if rec["doc_id"] != "doc-1" {
		t.Errorf("doc_id = %v", rec["doc_id"])
	}
	if rec["bytes"] != float64(42) {
		t.Errorf("bytes = %v", rec["bytes"])
	}
}

func TestLevelFiltering(t *testing.T) {
	l, buf := capture(t, "warn")
	l.Debug("quiet")
	l.Info("quiet")
	l.Warn("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Error("records below the configured level were emitted")
	}
	if !strings.Contains(out, "loud") {
		t.Error("warn record missing")
	}
}

func TestSetLevelTakesEffectLive(t *testing.T) {
	l, buf := capture(t, "info")
	t.Cleanup(func() { SetLevel("info") })

	l.Debug("before")
	SetLevel("debug")
	l.Debug("after")

	out := buf.String()
	if strings.Contains(out, "before") {
		t.Error("debug record emitted while level was info")
	}
	if !strings.Contains(out, "after") {
		t.Error("debug record missing after SetLevel(debug)")
	}
	if GetLevel() != "debug" {
		t.Errorf("GetLevel() = %q, want debug", GetLevel())
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "text", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.Info("hello", "k", "v")

	out := buf.String()
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("text format produced JSON: %q", out)
	}
	if !strings.Contains(out, "k=v") {
		t.Errorf("text output missing attribute: %q", out)
	}
}

func TestWithCarriesFields(t *testing.T) {
	l, buf := capture(t, "info")
	l.With("component", "backup").Info("flush done")

	rec := lastRecord(t, buf)
	if rec["component"] != "backup" {
		t.Errorf("component = %v", rec["component"])
	}
}

func TestNewNopIsSilent(t *testing.T) {
	l := NewNop()
	// Must not panic, must not write anywhere observable.
	l.Debug("a")
	l.Info("b")
	l.Warn("c")
	l.Error("d")
	l.With("k", "v").Error("e")
}

func TestParseLevelDefaults(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "debug"},
		{"WARNING", "warn"},
		{"error", "error"},
		{"", "info"},
		{"bogus", "info"},
	}
	t.Cleanup(func() { SetLevel("info") })

	for _, tt := range tests {
		SetLevel(tt.in)
		if got := GetLevel(); got != tt.want {
			t.Errorf("SetLevel(%q): GetLevel() = %q, want %q", tt.in, got, tt.want)
		}
	}
}
