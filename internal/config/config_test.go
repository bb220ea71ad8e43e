package config

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMustLoadDefaults(t *testing.T) {
	t.Setenv("RECONNECT_DELAY_MS", "")
	t.Setenv("PAGE_SIZE", "")
	cfg := MustLoad()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 2*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, 6, cfg.MaxReconnectAttempts)
}

func TestMustLoadOverrides(t *testing.T) {
	t.Setenv("TYPING_IDLE_MS", "300")
	t.Setenv("INBOUND_RATE", "0.5")
	t.Setenv("MAX_GROUP_MEMBERS", "bogus")
	cfg := MustLoad()
	assert.Equal(t, 300*time.Millisecond, cfg.TypingIdle)
	assert.Equal(t, 0.5, cfg.InboundRate)
	assert.Equal(t, 50, cfg.MaxGroupMembers)
}

func TestNewLoggerLevel(t *testing.T) {
	log := NewLogger("warn")
	assert.False(t, log.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, log.Enabled(context.Background(), slog.LevelWarn))
}
