package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WS_IDLE_TIMEOUT", "")
	cfg := Load()

	assert.Equal(t, 32, cfg.Realtime.MaxConsecutiveDrops)
	assert.Equal(t, 60*time.Second, cfg.Realtime.IdleTimeout)
	assert.Equal(t, 5*time.Second, cfg.Realtime.TypingTimeout)
	assert.Equal(t, 1000, cfg.Query.RowLimit)
	assert.Equal(t, 45*time.Second, cfg.Query.TotalTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WS_MAX_CONSECUTIVE_DROPS", "8")
	t.Setenv("WS_IDLE_TIMEOUT", "90")
	t.Setenv("QUERY_EXEC_TIMEOUT", "2m")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("WAREHOUSE_DRIVER", "sqlite")

	cfg := Load()
	assert.Equal(t, 8, cfg.Realtime.MaxConsecutiveDrops)
	assert.Equal(t, 90*time.Second, cfg.Realtime.IdleTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Query.ExecTimeout)
	assert.True(t, cfg.App.OtelEnabled)
	assert.Equal(t, "sqlite", cfg.Warehouse.Driver)
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"go duration", "1500ms", 1500 * time.Millisecond},
		{"seconds", "7", 7 * time.Second},
		{"garbage falls back", "soon", time.Minute},
		{"empty falls back", "", time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			assert.Equal(t, tt.want, getEnvAsDuration("TEST_DURATION", time.Minute))
		})
	}
}
