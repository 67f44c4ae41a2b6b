package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the access service.
type Config struct {
	AppName          string
	AppEnv           string
	AppPort          string
	DatabaseURL      string
	RedisURL         string
	NATSURL          string
	NATSSubject      string
	JWTSecret        string
	ReportCacheTTL   time.Duration
	AccessRateLimit  int
	AccessRateWindow time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// IsProduction reports whether the service runs with production settings.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GATE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Access API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("nats.subject", "access.granted")
	v.SetDefault("report.cache_ttl", "2m")
	v.SetDefault("access.rate_limit", 30)
	v.SetDefault("access.rate_window", "1m")

	reportTTL, err := parseDuration(v, "report.cache_ttl", 2*time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid report cache ttl: %w", err)
	}

	rateWindow, err := parseDuration(v, "access.rate_window", time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid access rate window: %w", err)
	}

	cfg := Config{
		AppName:          v.GetString("app.name"),
		AppEnv:           v.GetString("app.env"),
		AppPort:          v.GetString("app.port"),
		DatabaseURL:      v.GetString("database.url"),
		RedisURL:         v.GetString("redis.url"),
		NATSURL:          v.GetString("nats.url"),
		NATSSubject:      strings.TrimSpace(v.GetString("nats.subject")),
		JWTSecret:        v.GetString("jwt.secret"),
		ReportCacheTTL:   reportTTL,
		AccessRateLimit:  v.GetInt("access.rate_limit"),
		AccessRateWindow: rateWindow,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.AccessRateLimit <= 0 {
		cfg.AccessRateLimit = 30
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback, nil
	}

	return time.ParseDuration(raw)
}
