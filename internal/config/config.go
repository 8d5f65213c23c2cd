// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is everything the binary reads from the environment.
type Config struct {
	Remote   RemoteConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Paging   PagingConfig
	Warm     WarmConfig
	Logging  LoggingConfig
}

type RemoteConfig struct {
	BaseURL    string        `validate:"required,url"`
	Timeout    time.Duration `validate:"gt=0"`
	MaxRetries int           `validate:"min=0,max=10"`
	RetryWait  time.Duration `validate:"gte=0"`
}

type DatabaseConfig struct {
	Driver          string        `validate:"oneof=sqlite postgres"`
	URL             string        `validate:"required"`
	MaxOpenConns    int           `validate:"min=1"`
	MaxIdleConns    int           `validate:"min=0"`
	ConnMaxLifetime time.Duration `validate:"gte=0"`
	ConnMaxIdleTime time.Duration `validate:"gte=0"`
	BusyTimeout     time.Duration `validate:"gte=0"`
}

// RedisConfig is optional; an empty URL keeps locks and change
// notifications in process.
type RedisConfig struct {
	URL string `validate:"omitempty,url"`
}

type ServerConfig struct {
	Host           string `validate:"required"`
	Port           int    `validate:"min=1,max=65535"`
	AllowedOrigins []string
}

type PagingConfig struct {
	PageSize            int           `validate:"min=1,max=200"`
	PrefetchDistance    int           `validate:"min=0"`
	MaxFetchesPerWindow int           `validate:"min=1"`
	MaxPagers           int           `validate:"min=1"`
	CacheTimeout        time.Duration `validate:"gt=0"`
}

// WarmConfig controls the background warmer. A zero interval disables it.
type WarmConfig struct {
	Interval time.Duration `validate:"gte=0"`
	OnStart  bool
}

type LoggingConfig struct {
	Level      string `validate:"oneof=debug info warn error"`
	Format     string `validate:"oneof=text json"`
	File       string
	MaxSizeMB  int `validate:"min=1"`
	MaxBackups int `validate:"min=0"`
}

// Load reads a .env file when present, then the environment, and validates
// the result.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the environment alone.
func FromEnv() (*Config, error) {
	var errs []string
	dur := func(key string, def time.Duration) time.Duration {
		d, err := getEnvDuration(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return d
	}

	cfg := &Config{
		Remote: RemoteConfig{
			BaseURL:    getEnv("RMSYNC_API_URL", "https://rickandmortyapi.com/api"),
			Timeout:    dur("HTTP_TIMEOUT", 30*time.Second),
			MaxRetries: getEnvInt("HTTP_MAX_RETRIES", 3),
			RetryWait:  dur("HTTP_RETRY_WAIT", time.Second),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(getEnv("DATABASE_DRIVER", "sqlite")),
			URL:             getEnv("DATABASE_URL", defaultDatabasePath()),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: dur("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: dur("DB_CONN_MAX_IDLE", time.Minute),
			BusyTimeout:     dur("DB_BUSY_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Server: ServerConfig{
			Host:           getEnv("HOST", "0.0.0.0"),
			Port:           getEnvInt("PORT", 8080),
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Paging: PagingConfig{
			PageSize:            getEnvInt("PAGE_SIZE", 20),
			PrefetchDistance:    getEnvInt("PREFETCH_DISTANCE", 20),
			MaxFetchesPerWindow: getEnvInt("MAX_FETCHES_PER_WINDOW", 64),
			MaxPagers:           getEnvInt("MAX_PAGERS", 128),
			CacheTimeout:        dur("CACHE_TIMEOUT", time.Hour),
		},
		Warm: WarmConfig{
			Interval: dur("WARM_INTERVAL", 0),
			OnStart:  getEnvBool("WARM_ON_START", true),
		},
		Logging: LoggingConfig{
			Level:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format:     strings.ToLower(getEnv("LOG_FORMAT", "text")),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 50),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		},
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks every field constraint.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// defaultDatabasePath puts the cache file in the user cache directory,
// falling back to the working directory.
func defaultDatabasePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join("data", "rmsync.db")
	}
	return filepath.Join(dir, "rmsync", "cache.db")
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
