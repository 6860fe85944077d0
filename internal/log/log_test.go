package log

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"info":  zerolog.InfoLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
		"trace": zerolog.TraceLevel,
		"bogus": zerolog.InfoLevel,
		"":      zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestJSONLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLogger(&buf, "debug")
	l.Info().Uint32("height", 100).Msg("header accepted")

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if m["message"] != "header accepted" || m["height"].(float64) != 100 {
		t.Errorf("unexpected entry %v", m)
	}
}

func TestJSONLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLogger(&buf, "warn")
	l.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Errorf("info entry written at warn level: %s", buf.String())
	}
}

func TestInit_WithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.log")
	if err := Init("info", true, path); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Init("info", false, "")

	l := WithChainID(7)
	l.Info().Msg("hello")
	if Sync.GetLevel() != zerolog.InfoLevel {
		t.Errorf("component logger level = %v", Sync.GetLevel())
	}
}

func TestWithChainID_Field(t *testing.T) {
	saved := Logger
	defer func() { Logger = saved }()

	var buf bytes.Buffer
	Logger = NewJSONLogger(&buf, "info")
	l := WithChainID(42)
	l.Warn().Msg("conflict")

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if m["chain_id"].(float64) != 42 || m["level"] != "warn" {
		t.Errorf("unexpected entry %v", m)
	}
}
