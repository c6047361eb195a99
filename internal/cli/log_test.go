package cli

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level     log.Level
		wantDebug bool
		wantInfo  bool
	}{
		{log.DebugLevel, true, true},
		{log.InfoLevel, false, true},
		{log.WarnLevel, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			var debug, info bytes.Buffer
			newLogger(&debug, tt.level).Debug("applying targets")
			newLogger(&info, tt.level).Info("attempt 1 of 20")
			if got := debug.Len() > 0; got != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v", got, tt.wantDebug)
			}
			if got := info.Len() > 0; got != tt.wantInfo {
				t.Errorf("info logged = %v, want %v", got, tt.wantInfo)
			}
		})
	}
}

func TestNewLoggerTimestamp(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, log.InfoLevel).Info("x")
	if !regexp.MustCompile(`^\d{2}:\d{2}:\d{2}\.\d{2} `).MatchString(buf.String()) {
		t.Errorf("line %q should start with a HH:MM:SS.cc timestamp", buf.String())
	}
}

func TestProgressDone(t *testing.T) {
	var buf bytes.Buffer
	p := newProgress(newLogger(&buf, log.InfoLevel))
	p.start = p.start.Add(-1500 * time.Millisecond)
	p.done("Rendered run graph")

	if out := buf.String(); !strings.Contains(out, "Rendered run graph (1.5") {
		t.Errorf("done() = %q, want message with elapsed time", out)
	}
}

func TestLoggerFromContext(t *testing.T) {
	custom := newLogger(&bytes.Buffer{}, log.InfoLevel)

	if got := loggerFromContext(withLogger(context.Background(), custom)); got != custom {
		t.Error("attached logger should be returned")
	}
	if got := loggerFromContext(context.Background()); got != log.Default() {
		t.Error("missing logger should fall back to log.Default()")
	}
	if got := loggerFromContext(nil); got != log.Default() {
		t.Error("nil context should fall back to log.Default()")
	}
}

func TestLogHooks(t *testing.T) {
	var buf bytes.Buffer
	h := &logHooks{logger: newLogger(&buf, log.DebugLevel)}
	ctx := context.Background()

	h.OnState(ctx, "0123456789abcdef", "INIT", "VALIDATE_TARGETS")
	h.OnAttempt(ctx, "0123456789abcdef", 2, 10, false, 1500*time.Millisecond)
	h.OnCheckpoint(ctx, "0123456789abcdef", 1, "deadbeefcafe")
	h.OnCacheHit(ctx, "ranking:react")

	out := buf.String()
	for _, want := range []string{"run=01234567", "to=VALIDATE_TARGETS", "attempt finished", "attempt=2", "success=false", "commit=deadbee", "cache hit"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "0123456789abcdef") {
		t.Error("run IDs should be shortened")
	}
}

func TestLogHooksInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	h := &logHooks{logger: newLogger(&buf, log.InfoLevel)}
	h.OnState(context.Background(), "run", "INIT", "VALIDATE_TARGETS")
	h.OnCacheMiss(context.Background(), "meta:react")
	if buf.Len() != 0 {
		t.Errorf("state and cache events should be debug-only, got %q", buf.String())
	}
}

