package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	DBDriver         string        `mapstructure:"DB_DRIVER"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir    string        `mapstructure:"MIGRATIONS_DIR"`
	JWTSecret        string        `mapstructure:"JWT_SECRET"`
	AuthIssuer       string        `mapstructure:"AUTH_ISSUER"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	CallLimit        int           `mapstructure:"CALL_LIMIT"`
	RealtimeThrottle time.Duration `mapstructure:"REALTIME_THROTTLE"`
	GeneralPoly      string        `mapstructure:"GENERAL_POLY"`
	StatusLabelsFile string        `mapstructure:"STATUS_LABELS_FILE"`
	Timezone         string        `mapstructure:"TIMEZONE"`
}

var keys = []string{
	"PORT", "ENV", "DB_DRIVER", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"MIGRATIONS_DIR", "JWT_SECRET", "AUTH_ISSUER", "CORS_ORIGINS", "CALL_LIMIT",
	"REALTIME_THROTTLE", "GENERAL_POLY", "STATUS_LABELS_FILE", "TIMEZONE",
}

func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_DRIVER", DriverPostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("CALL_LIMIT", 3)
	v.SetDefault("REALTIME_THROTTLE", "500ms")
	v.SetDefault("GENERAL_POLY", "umum")
	v.SetDefault("TIMEZONE", "Asia/Jakarta")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET not set in development mode; every request runs as admin")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves TIMEZONE. Queue numbers and "today" are computed in
// this zone, not in the host's.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverPostgres, DriverMySQL:
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMySQL, c.DBDriver)
	}
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
	}
	if c.CallLimit < 1 {
		return fmt.Errorf("CALL_LIMIT must be at least 1, got %d", c.CallLimit)
	}
	if c.RealtimeThrottle < 0 {
		return fmt.Errorf("REALTIME_THROTTLE must not be negative, got %s", c.RealtimeThrottle)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
