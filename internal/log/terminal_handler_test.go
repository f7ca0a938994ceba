package log

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecord(level slog.Level, msg string, attrs ...slog.Attr) slog.Record {
	r := slog.NewRecord(time.Date(2026, 3, 14, 15, 4, 5, 0, time.UTC), level, msg, 0)
	r.AddAttrs(attrs...)
	return r
}

func TestTerminalHandlerFormatsRecord(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, nil)

	r := newTestRecord(slog.LevelInfo, "feed ingested",
		slog.String("provider", "steam"),
		slog.Int("rows_written", 412),
	)
	require.NoError(t, h.Handle(context.Background(), r))

	out := buf.String()
	assert.Contains(t, out, "15:04:05.000")
	assert.Contains(t, out, "INF")
	assert.Contains(t, out, "feed ingested")
	assert.Contains(t, out, "provider=")
	assert.Contains(t, out, "steam")
	assert.Contains(t, out, "rows_written=")
	assert.Contains(t, out, "412")
}

func TestTerminalHandlerLevelLabels(t *testing.T) {
	cases := map[slog.Level]string{
		slog.LevelDebug: "DBG",
		slog.LevelInfo:  "INF",
		slog.LevelWarn:  "WRN",
		slog.LevelError: "ERR",
	}
	for level, label := range cases {
		var buf bytes.Buffer
		h := newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
		require.NoError(t, h.Handle(context.Background(), newTestRecord(level, "message")))
		assert.Contains(t, buf.String(), label, "level %v", level)
	}
}

func TestTerminalHandlerEnabled(t *testing.T) {
	h := newTerminalHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})

	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestTerminalHandlerHighlightsErrorAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, nil)

	r := newTestRecord(slog.LevelError, "fetch failed",
		slog.String("error", "connection refused"),
	)
	require.NoError(t, h.Handle(context.Background(), r))

	assert.Contains(t, buf.String(), ansiRed+`"connection refused"`+ansiReset)
}

func TestTerminalHandlerErrorKeys(t *testing.T) {
	assert.True(t, isErrorKey("error"))
	assert.True(t, isErrorKey("err"))
	assert.True(t, isErrorKey("last_error"))
	assert.False(t, isErrorKey("provider"))
}

func TestTerminalHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, nil)

	withAttrs := h.WithAttrs([]slog.Attr{slog.String("worker_id", "host-1-0")})
	require.NoError(t, withAttrs.Handle(context.Background(), newTestRecord(slog.LevelInfo, "claimed")))

	assert.Contains(t, buf.String(), "worker_id=")
	assert.Contains(t, buf.String(), "host-1-0")

	// The original handler is untouched.
	buf.Reset()
	require.NoError(t, h.Handle(context.Background(), newTestRecord(slog.LevelInfo, "claimed")))
	assert.NotContains(t, buf.String(), "worker_id")
}

func TestTerminalHandlerWithGroup(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, nil)

	grouped := h.WithGroup("job").WithAttrs([]slog.Attr{slog.Int("id", 7)})
	require.NoError(t, grouped.Handle(context.Background(), newTestRecord(slog.LevelInfo, "running")))

	assert.Contains(t, buf.String(), "job.id=")
}

func TestTerminalHandlerInlineGroup(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, nil)

	r := newTestRecord(slog.LevelInfo, "batch done",
		slog.Group("feed", slog.String("provider", "gog")),
	)
	require.NoError(t, h.Handle(context.Background(), r))

	assert.Contains(t, buf.String(), "feed.provider=")
	assert.Contains(t, buf.String(), "gog")
}

func TestTerminalHandlerQuotesStrings(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, nil)

	r := newTestRecord(slog.LevelInfo, "note",
		slog.String("plain", "steam"),
		slog.String("spaced", "two words"),
	)
	require.NoError(t, h.Handle(context.Background(), r))

	assert.Contains(t, buf.String(), "plain="+ansiReset+"steam")
	assert.Contains(t, buf.String(), `"two words"`)
}

func TestTerminalHandlerDropsEmptyAttr(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, nil)

	r := newTestRecord(slog.LevelInfo, "message", slog.Attr{})
	require.NoError(t, h.Handle(context.Background(), r))

	assert.NotContains(t, buf.String(), "=")
}
