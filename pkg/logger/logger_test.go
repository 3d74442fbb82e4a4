package logger

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func newBufferLogger(t *testing.T, level string) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := NewLogger(LoggerConfig{
		Level:         level,
		EnableConsole: true,
		EnableJSON:    true,
		Output:        &buf,
	})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	return l, &buf
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger(LoggerConfig{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(t, "WARN")

	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line written at WARN level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn line missing: %s", out)
	}
}

func TestContextFieldsAreCarried(t *testing.T) {
	l, buf := newBufferLogger(t, "DEBUG")

	l.WithComponent("queue").WithGuild("g1").WithRequest("req-1").
		Error("boom", errors.New("bad"), Fields{"extra": 3})

	out := buf.String()
	for _, want := range []string{`"component":"queue"`, `"guild_id":"g1"`, `"request_id":"req-1"`, `"extra":3`, `"error":"bad"`} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in %s", want, out)
		}
	}
}

func TestLogCommandEvent(t *testing.T) {
	tests := []struct {
		name    string
		success bool
		level   string
	}{
		{"success", true, `"level":"info"`},
		{"failure", false, `"level":"warn"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := newBufferLogger(t, "DEBUG")
			l.LogCommandEvent("play", "u1", "g1", tt.success, 1500*time.Millisecond, nil)

			out := buf.String()
			if !strings.Contains(out, tt.level) {
				t.Errorf("want %s in %s", tt.level, out)
			}
			if !strings.Contains(out, `"duration_ms":1500`) {
				t.Errorf("duration missing: %s", out)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	l, buf := newBufferLogger(t, "INFO")
	if err := l.SetLevel("ERROR"); err != nil {
		t.Fatal(err)
	}
	l.Warn("quiet")
	if buf.Len() != 0 {
		t.Errorf("expected nothing written, got %s", buf.String())
	}
	if l.GetLevel() != "ERROR" {
		t.Errorf("GetLevel = %s", l.GetLevel())
	}
}

func TestNopDoesNotPanic(t *testing.T) {
	l := Nop()
	l.WithGuild("g").Info("nothing")
	l.Error("nothing", errors.New("x"))
}
