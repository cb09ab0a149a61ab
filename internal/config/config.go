package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port               int    `env:"PORT" envDefault:"8080"`
	DatabaseURL        string `env:"DATABASE_URL,required"`
	RedisURL           string `env:"REDIS_URL,required"`
	PublicBaseURL      string `env:"PUBLIC_BASE_URL" envDefault:""`
	DeviceStaleSeconds int    `env:"DEVICE_STALE_SECONDS" envDefault:"90"`
	ReaperDisabled     bool   `env:"REAPER_DISABLED" envDefault:"false"`
	RateLimitPerMin    int    `env:"RATE_LIMIT_PER_MIN" envDefault:"120"`
	LogLevel           string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) DeviceStaleAfter() time.Duration {
	return time.Duration(c.DeviceStaleSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// JoinURL builds the QR-encodable join link for a session code.
func (c *Config) JoinURL(code string) string {
	base := strings.TrimSuffix(c.PublicBaseURL, "/")
	return fmt.Sprintf("%s/studio?code=%s", base, code)
}

func (c *Config) Validate(isProduction bool) error {
	if c.DeviceStaleSeconds < MinDeviceStaleSeconds {
		return fmt.Errorf("DEVICE_STALE_SECONDS must be at least %d (got %d)", MinDeviceStaleSeconds, c.DeviceStaleSeconds)
	}

	if isProduction {
		if c.PublicBaseURL == "" {
			log.Warn().Msg("PUBLIC_BASE_URL is empty in production: QR join links will be relative")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
