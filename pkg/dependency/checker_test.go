package dependency

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func fakeRunner(available map[string]string) Runner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		out, ok := available[name]
		if !ok {
			return nil, errors.New("executable file not found in $PATH")
		}
		return []byte(out), nil
	}
}

func newTestChecker(available map[string]string) *Checker {
	c := NewChecker(time.Second)
	c.run = fakeRunner(available)
	return c
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name         string
		available    map[string]string
		requireYtdlp bool
		severity     string
		healthy      bool
	}{
		{"all present", map[string]string{"ffmpeg": "ffmpeg version 6.1\nbuilt with gcc", "yt-dlp": "2024.08.06"}, true, "OK", true},
		{"optional yt-dlp missing", map[string]string{"ffmpeg": "ffmpeg version 6.1"}, false, "WARNING", true},
		{"required yt-dlp missing", map[string]string{"ffmpeg": "ffmpeg version 6.1"}, true, "CRITICAL", false},
		{"ffmpeg missing", map[string]string{"yt-dlp": "2024.08.06"}, false, "CRITICAL", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := newTestChecker(tt.available).Validate(context.Background(), SystemDependencies(tt.requireYtdlp))
			if report.Severity != tt.severity || report.IsHealthy() != tt.healthy {
				t.Errorf("severity=%s healthy=%v", report.Severity, report.IsHealthy())
			}
		})
	}
}

func TestVersionIsFirstLine(t *testing.T) {
	report := newTestChecker(map[string]string{"ffmpeg": "ffmpeg version 6.1\nconfiguration: --enable-libopus\n"}).
		Validate(context.Background(), SystemDependencies(false))

	if got := report.Results[0].Version; got != "ffmpeg version 6.1" {
		t.Errorf("Version = %q", got)
	}
	if len(report.OptionalMissing) != 1 || report.OptionalMissing[0] != "yt-dlp" {
		t.Errorf("OptionalMissing = %v", report.OptionalMissing)
	}

	text := report.GenerateReport()
	for _, want := range []string{"FFmpeg: ✓ Available (Required)", "yt-dlp: ✗ Missing", "pip install yt-dlp"} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q:\n%s", want, text)
		}
	}
}

func TestHasOpusEncoder(t *testing.T) {
	c := newTestChecker(map[string]string{"ffmpeg": " A....D libopus              libopus Opus\n"})
	ok, err := c.HasOpusEncoder(context.Background())
	if err != nil || !ok {
		t.Errorf("HasOpusEncoder = %v, %v", ok, err)
	}

	c = newTestChecker(nil)
	if _, err := c.HasOpusEncoder(context.Background()); err == nil {
		t.Error("missing ffmpeg not reported")
	}
}
