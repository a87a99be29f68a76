// Package config reads service configuration from environment variables.
// A local .env file is honoured when present so development setups do not
// need to export secrets by hand.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every runtime setting of the service.
type Config struct {
	Addr  string
	PGDSN string

	// Token signing secrets. Access and refresh secrets are independent;
	// neither is ever derived from the other.
	AccessSecret  string
	RefreshSecret string
	CSRFSecret    string

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	SessionTTL time.Duration
	CSRFTTL    time.Duration
	OTPTTL     time.Duration

	RateBurst  int
	RatePerSec int

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	AllowedOrigins []string
}

// Load reads configuration from the environment, applying defaults for
// everything except the signing secrets and the database DSN.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:              getEnv("AUTHCORE_ADDR", ":8080"),
		PGDSN:             os.Getenv("AUTHCORE_PG_DSN"),
		AccessSecret:      os.Getenv("AUTHCORE_ACCESS_SECRET"),
		RefreshSecret:     os.Getenv("AUTHCORE_REFRESH_SECRET"),
		CSRFSecret:        os.Getenv("AUTHCORE_CSRF_SECRET"),
		AccessTTL:         getEnvDuration("AUTHCORE_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:        getEnvDuration("AUTHCORE_REFRESH_TTL", 7*24*time.Hour),
		SessionTTL:        getEnvDuration("AUTHCORE_SESSION_TTL", 7*24*time.Hour),
		CSRFTTL:           getEnvDuration("AUTHCORE_CSRF_TTL", 30*time.Minute),
		OTPTTL:            getEnvDuration("AUTHCORE_OTP_TTL", 10*time.Minute),
		RateBurst:         getEnvInt("AUTHCORE_RATE_BURST", 20),
		RatePerSec:        getEnvInt("AUTHCORE_RATE_PER_SEC", 10),
		DBMaxOpenConns:    getEnvInt("AUTHCORE_DB_MAX_OPEN", 50),
		DBMaxIdleConns:    getEnvInt("AUTHCORE_DB_MAX_IDLE", 25),
		DBConnMaxLifetime: getEnvDuration("AUTHCORE_DB_CONN_LIFETIME", 15*time.Minute),
	}

	if raw := os.Getenv("AUTHCORE_ALLOWED_ORIGINS"); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.AccessSecret) == "" {
		return errors.New("AUTHCORE_ACCESS_SECRET is required")
	}
	if strings.TrimSpace(c.RefreshSecret) == "" {
		return errors.New("AUTHCORE_REFRESH_SECRET is required")
	}
	if c.AccessSecret == c.RefreshSecret {
		return errors.New("access and refresh secrets must differ")
	}
	if strings.TrimSpace(c.CSRFSecret) == "" {
		return errors.New("AUTHCORE_CSRF_SECRET is required")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// String renders the non-secret part of the configuration for startup logs.
func (c Config) String() string {
	return fmt.Sprintf("addr=%s access_ttl=%s refresh_ttl=%s session_ttl=%s csrf_ttl=%s",
		c.Addr, c.AccessTTL, c.RefreshTTL, c.SessionTTL, c.CSRFTTL)
}
