package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestRecorderWith(t *testing.T) {
	r := NewRecorder()
	l := r.With(String("component", "Mirror"))
	l.Warn("aperture outside array", Int("pixels", 3))
	r.Info("done")
	ev := r.Events()
	if len(ev) != 2 {
		t.Fatalf("expected 2 events got %d", len(ev))
	}
	if len(ev[0].Fields) != 2 || ev[0].Fields[0].Value != "Mirror" {
		t.Errorf("expected the component field to be inherited, got %v", ev[0].Fields)
	}
	if w := r.Warnings(); len(w) != 1 || w[0] != "aperture outside array" {
		t.Errorf("expected one warning got %v", w)
	}
}

func TestNewTextLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(Config{Level: "warn"}, buf)
	l.Info("hidden")
	l.Warn("shown", Float("snr", 7.1))
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message leaked at warn level: %s", out)
	}
	if !strings.Contains(out, "snr=7.1") {
		t.Errorf("expected the snr field in %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != slog.LevelDebug {
		t.Error("expected debug")
	}
	if ParseLevel("") != slog.LevelWarn {
		t.Error("expected the default level to be warn")
	}
}
