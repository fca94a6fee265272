package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

var keys = []string{
	"HTTP_ADDR", "TICK_RATE", "IDLE_TIMEOUT", "SWEEP_INTERVAL", "OUTBOX_SIZE",
	"DATABASE_URL", "LOG_LEVEL", "LOG_FILE", "ABILITY_EFFECTS", "APP_ENV", "ALLOWED_ORIGINS",
}

// clearEnv blanks every key. Viper ignores empty variables, so defaults
// apply.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 30, cfg.TickRate)
	assert.Equal(t, 10*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 64, cfg.OutboxSize)
	assert.Equal(t, "", cfg.DatabaseURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, EffectsNone, cfg.AbilityEffects)
	assert.Equal(t, "development", cfg.Env)
	assert.False(t, cfg.Production())
	assert.Nil(t, cfg.OriginPatterns())
}

func TestLoad_EnvVarOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("TICK_RATE", "60")
	t.Setenv("IDLE_TIMEOUT", "90s")
	t.Setenv("ABILITY_EFFECTS", "direct")
	t.Setenv("APP_ENV", "production")
	t.Setenv("ALLOWED_ORIGINS", "example.com, *.example.com ,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 60, cfg.TickRate)
	assert.Equal(t, 90*time.Second, cfg.IdleTimeout)
	assert.Equal(t, EffectsDirect, cfg.AbilityEffects)
	assert.True(t, cfg.Production())
	assert.Equal(t, []string{"example.com", "*.example.com"}, cfg.OriginPatterns())
}

func TestLoad_ReportsEveryProblem(t *testing.T) {
	clearEnv(t)
	t.Setenv("TICK_RATE", "0")
	t.Setenv("OUTBOX_SIZE", "-1")
	t.Setenv("LOG_LEVEL", "loud")
	t.Setenv("ABILITY_EFFECTS", "chaos")

	_, err := Load()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 4)
	assert.Contains(t, err.Error(), "TICK_RATE")
	assert.Contains(t, err.Error(), "ABILITY_EFFECTS")
}
