package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger creates a new logger with timestamp formatting.
// Timestamps are formatted as "HH:MM:SS.ms" (e.g., "14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress tracks the start time of an operation and logs completion with elapsed duration.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg along with the elapsed time since progress was created.
// Example output: "Rendered run graph (1.234s)"
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

type ctxKey int

const loggerKey ctxKey = 0

// withLogger returns a new context with the given logger attached.
func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext retrieves the logger from ctx, or log.Default().
func loggerFromContext(ctx context.Context) *log.Logger {
	if ctx == nil {
		return log.Default()
	}
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}

// =============================================================================
// Observability Hooks
// =============================================================================

// logHooks reports resolution, cache and HTTP events through the CLI logger.
type logHooks struct {
	logger *log.Logger
}

func (h *logHooks) OnState(_ context.Context, runID, from, to string) {
	h.logger.Debug("state", "run", shortRunID(runID), "from", from, "to", to)
}

func (h *logHooks) OnAttempt(_ context.Context, runID string, attempt, max int, success bool, d time.Duration) {
	h.logger.Debug("attempt finished", "run", shortRunID(runID), "attempt", attempt, "max", max, "success", success, "took", d.Round(time.Millisecond))
}

func (h *logHooks) OnSuggestion(_ context.Context, runID string, attempt, rounds int, err error) {
	h.logger.Debug("suggestion rounds", "run", shortRunID(runID), "attempt", attempt, "rounds", rounds, "ok", err == nil)
}

func (h *logHooks) OnCheckpoint(_ context.Context, runID string, index int, hash string) {
	h.logger.Debug("checkpoint", "run", shortRunID(runID), "index", index, "commit", shortHash(hash))
}

func (h *logHooks) OnFinalize(_ context.Context, runID, outcome, copyBack string, d time.Duration) {
	h.logger.Debug("run finished", "run", shortRunID(runID), "outcome", outcome, "copy_back", copyBack, "took", d.Round(time.Millisecond))
}

func (h *logHooks) OnCacheHit(_ context.Context, kind string) {
	h.logger.Debug("cache hit", "kind", kind)
}

func (h *logHooks) OnCacheMiss(_ context.Context, kind string) {
	h.logger.Debug("cache miss", "kind", kind)
}

func (h *logHooks) OnCacheSet(_ context.Context, kind string, size int) {
	h.logger.Debug("cache set", "kind", kind, "bytes", size)
}

func (h *logHooks) OnRequest(context.Context, string, string, string) {}

func (h *logHooks) OnResponse(_ context.Context, method, host, path string, status int, d time.Duration) {
	h.logger.Debug("http", "method", method, "url", host+path, "status", status, "took", d.Round(time.Millisecond))
}

func (h *logHooks) OnError(_ context.Context, method, host, path string, err error) {
	h.logger.Warn("http request failed", "method", method, "url", host+path, "err", err)
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}
