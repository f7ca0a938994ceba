package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewDefaults(t *testing.T) {
	j := New("feed.json", 50, map[string]any{"url": "https://example.com/feed"})

	assert.Equal(t, Kind("feed.json"), j.Kind())
	assert.Equal(t, StatusQueued, j.Status())
	assert.Equal(t, 50, j.Priority())
	assert.Equal(t, DefaultMaxAttempts, j.MaxAttempts())
	assert.Zero(t, j.Attempts())
	assert.WithinDuration(t, time.Now().UTC(), j.ScheduledAt(), time.Minute)
}

func TestPayloadIsCopied(t *testing.T) {
	payload := map[string]any{"url": "https://example.com/feed"}
	j := New("feed.json", 100, payload)

	payload["url"] = "mutated"
	assert.Equal(t, "https://example.com/feed", j.Payload()["url"])

	j.Payload()["url"] = "mutated again"
	assert.Equal(t, "https://example.com/feed", j.Payload()["url"])
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestBackoffGrowsLinearly(t *testing.T) {
	base := time.Minute
	assert.Equal(t, time.Minute, Backoff(base, 1))
	assert.Equal(t, 2*time.Minute, Backoff(base, 2))
	assert.Equal(t, 3*time.Minute, Backoff(base, 3))
}

func TestBackoffFloorsAttempts(t *testing.T) {
	assert.Equal(t, time.Minute, Backoff(time.Minute, 0))
	assert.Equal(t, time.Minute, Backoff(time.Minute, -4))
}

func TestWithScheduledAt(t *testing.T) {
	at := time.Date(2026, 9, 1, 6, 0, 0, 0, time.UTC)
	j := New("feed.json", 100, nil).WithScheduledAt(at)
	assert.Equal(t, at, j.ScheduledAt())
}
