package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
		{"verbose", InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNamedLoggerFiltersAndPrefixes(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("info", "json", &buf)
	t.Cleanup(func() { defaultLogger = nil })

	l := Named("market")
	l.Debugf("hidden %d", 1)
	l.Infof("tick applied to %d markets", 4)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line should be filtered at info level: %q", out)
	}
	if !strings.Contains(out, "[INFO] [market] tick applied to 4 markets") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestNamedLoggerBeforeInit(t *testing.T) {
	defaultLogger = nil
	// Must not panic without an initialised default logger.
	Named("storage").Errorf("dropped")
}
