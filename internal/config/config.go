// Package config loads the server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/tendant/simple-media/internal/store"
)

type Config struct {
	Port          int    `env:"PORT" envDefault:"8080"`
	ServerAddress string `env:"SERVER_ADDRESS"`
	StoragePath   string `env:"LOCAL_STORAGE_PATH" envDefault:"./data"`

	DatabaseType string `env:"DATABASE_TYPE" envDefault:"SQLITE"`
	SQLitePath   string `env:"SQLITE_DATABASE_PATH"`
	DBHost       string `env:"DB_HOST" envDefault:"localhost"`
	DBPort       int    `env:"DB_PORT"`
	DBUser       string `env:"DB_USERNAME"`
	DBPassword   string `env:"DB_PASSWORD"`
	DBName       string `env:"DB_NAME" envDefault:"media"`
	DBSSLMode    string `env:"DB_SSLMODE" envDefault:"disable"`

	AuthRequired bool   `env:"API_AUTH_ENABLED" envDefault:"false"`
	MasterKey    string `env:"MASTER_API_KEY"`

	MaxFileSize    int64 `env:"MAX_FILE_SIZE" envDefault:"52428800"`
	MaxImageEdge   int   `env:"MAX_IMAGE_EDGE" envDefault:"16384"`
	MaxImagePixels int64 `env:"MAX_IMAGE_PIXELS" envDefault:"100000000"`
	MaxOutputEdge  int   `env:"MAX_OUTPUT_IMAGE_EDGE" envDefault:"4096"`

	FFmpegPath  string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	FFprobePath string `env:"FFPROBE_PATH" envDefault:"ffprobe"`
	WebPQuality int    `env:"WEBP_QUALITY" envDefault:"80"`
	JPEGQuality int    `env:"JPEG_QUALITY" envDefault:"85"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	NATSURL      string `env:"NATS_URL"`
	EventSubject string `env:"EVENT_SUBJECT" envDefault:"media.artifacts"`

	RedisURL        string        `env:"REDIS_URL"`
	VariantCacheTTL time.Duration `env:"VARIANT_CACHE_TTL" envDefault:"1h"`

	ReconcileSchedule string `env:"RECONCILE_SCHEDULE"`
}

// Load reads an optional .env file and parses the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse builds a Config from the process environment and validates it.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.DatabaseType = strings.ToUpper(strings.TrimSpace(cfg.DatabaseType))
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = strings.TrimRight(cfg.StoragePath, "/") + "/media.db"
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ServerAddress == "" {
		return errors.New("SERVER_ADDRESS is required")
	}
	u, err := url.Parse(c.ServerAddress)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("SERVER_ADDRESS must be an absolute URL (got %q)", c.ServerAddress)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range (got %d)", c.Port)
	}

	for name, v := range map[string]int64{
		"MAX_FILE_SIZE":         c.MaxFileSize,
		"MAX_IMAGE_EDGE":        int64(c.MaxImageEdge),
		"MAX_IMAGE_PIXELS":      c.MaxImagePixels,
		"MAX_OUTPUT_IMAGE_EDGE": int64(c.MaxOutputEdge),
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be greater than zero (got %d)", name, v)
		}
	}
	if c.WebPQuality < 1 || c.WebPQuality > 100 {
		return fmt.Errorf("WEBP_QUALITY must be between 1 and 100 (got %d)", c.WebPQuality)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be between 1 and 100 (got %d)", c.JPEGQuality)
	}

	switch c.DatabaseType {
	case "SQLITE", "POSTGRES", "MYSQL", "MARIADB", "MSSQL":
	default:
		return fmt.Errorf("unsupported DATABASE_TYPE %q", c.DatabaseType)
	}
	if c.AuthRequired && c.MasterKey == "" {
		return errors.New("MASTER_API_KEY is required when API_AUTH_ENABLED is set")
	}
	return nil
}

// Store returns the repository connection settings.
func (c Config) Store() store.Config {
	return store.Config{
		Type:       c.DatabaseType,
		SQLitePath: c.SQLitePath,
		Host:       c.DBHost,
		Port:       c.DBPort,
		User:       c.DBUser,
		Password:   c.DBPassword,
		Name:       c.DBName,
		SSLMode:    c.DBSSLMode,
	}
}

// Addr is the listen address.
func (c Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }
