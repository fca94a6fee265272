// Package config loads server settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
)

const (
	EffectsNone   = "none"
	EffectsDirect = "direct"
)

type Config struct {
	// HTTPAddr is the listen address for HTTP and WebSocket traffic.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// TickRate is the simulation rate in Hz.
	TickRate int `mapstructure:"TICK_RATE"`
	// IdleTimeout is how long a session with no connections survives
	// without activity. Zero disables eviction.
	IdleTimeout   time.Duration `mapstructure:"IDLE_TIMEOUT"`
	SweepInterval time.Duration `mapstructure:"SWEEP_INTERVAL"`
	// OutboxSize is the per-connection frame buffer; frames beyond it drop.
	OutboxSize int `mapstructure:"OUTBOX_SIZE"`
	// DatabaseURL selects the Postgres store. Empty keeps sessions in memory.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	// LogFile, when set, sends logs to a rotated file instead of stdout.
	LogFile        string `mapstructure:"LOG_FILE"`
	AbilityEffects string `mapstructure:"ABILITY_EFFECTS"`
	Env            string `mapstructure:"APP_ENV"`
	// AllowedOrigins is a comma-separated list of WebSocket origin patterns.
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
}

// Load reads .env (if present) into the process environment, then builds and
// validates Config. Real environment variables win over .env entries.
func Load() (*Config, error) {
	_ = godotenv.Load() // missing .env is fine

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("TICK_RATE", 30)
	v.SetDefault("IDLE_TIMEOUT", "10m")
	v.SetDefault("SWEEP_INTERVAL", "30s")
	v.SetDefault("OUTBOX_SIZE", 64)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("ABILITY_EFFECTS", EffectsNone)
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("ALLOWED_ORIGINS", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var err error
	if c.HTTPAddr == "" {
		err = multierr.Append(err, errors.New("config: HTTP_ADDR must be set"))
	}
	if c.TickRate < 1 || c.TickRate > 240 {
		err = multierr.Append(err, errors.New("config: TICK_RATE must be between 1 and 240"))
	}
	if c.IdleTimeout < 0 {
		err = multierr.Append(err, errors.New("config: IDLE_TIMEOUT must not be negative"))
	}
	if c.IdleTimeout > 0 && c.SweepInterval <= 0 {
		err = multierr.Append(err, errors.New("config: SWEEP_INTERVAL must be positive when IDLE_TIMEOUT is set"))
	}
	if c.OutboxSize < 1 {
		err = multierr.Append(err, errors.New("config: OUTBOX_SIZE must be positive"))
	}
	if _, perr := zapcore.ParseLevel(c.LogLevel); perr != nil {
		err = multierr.Append(err, fmt.Errorf("config: LOG_LEVEL: %w", perr))
	}
	switch c.AbilityEffects {
	case EffectsNone, EffectsDirect:
	default:
		err = multierr.Append(err, fmt.Errorf("config: ABILITY_EFFECTS must be %q or %q", EffectsNone, EffectsDirect))
	}
	return err
}

func (c *Config) Production() bool { return c.Env == "production" }

// OriginPatterns splits AllowedOrigins for the WebSocket accept options.
func (c *Config) OriginPatterns() []string {
	if c == nil || c.AllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
