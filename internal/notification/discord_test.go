package notification

import (
	"testing"
	"time"

	apperrors "authfuzz/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbed(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e := Embed(Message{
		Title:     "jwt_replay_possible",
		Severity:  "high",
		Fields:    map[string]string{"scan": "s1", "endpoint": "GET http://lab/x"},
		Timestamp: ts,
	})

	assert.Equal(t, 0xFF0000, e.Color)
	assert.Equal(t, "2026-01-02T03:04:05Z", e.Timestamp)
	require.Len(t, e.Fields, 2)
	assert.Equal(t, "endpoint", e.Fields[0].Name)
	assert.Equal(t, "scan", e.Fields[1].Name)
}

func TestSeverityColorFallback(t *testing.T) {
	assert.Equal(t, 0x808080, SeverityColor("whatever"))
	assert.Equal(t, 0xFFD700, SeverityColor("low"))
}

func TestNewNotificationClientRequiresEnv(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("DISCORD_CHANNEL_ID", "")

	_, err := NewNotificationClient()
	assert.ErrorIs(t, err, apperrors.ErrDiscordNotConfigured)
}
