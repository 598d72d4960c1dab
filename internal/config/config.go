package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DBPath      string
	LogLevel    string
	LogFormat   string
	TokenSecret string
	TokenIssuer string
	Location    *time.Location

	// CollectCodeLimit requests per CollectCodeWindow for each staff session
	// on the code-only collection endpoint.
	CollectCodeLimit  int
	CollectCodeWindow time.Duration

	AllowedOrigins []string
}

// Load reads an optional .env file, then CURTAINCALL_* environment
// variables. Variables already set in the environment win over .env.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Port:        getEnv("CURTAINCALL_PORT", "8080"),
		DBPath:      getEnv("CURTAINCALL_DB_PATH", "curtaincall.db"),
		LogLevel:    getEnv("CURTAINCALL_LOG_LEVEL", "info"),
		LogFormat:   getEnv("CURTAINCALL_LOG_FORMAT", "text"),
		TokenSecret: os.Getenv("CURTAINCALL_TOKEN_SECRET"),
		TokenIssuer: os.Getenv("CURTAINCALL_TOKEN_ISSUER"),
	}

	if cfg.TokenSecret == "" {
		return nil, errors.New("CURTAINCALL_TOKEN_SECRET is required")
	}

	loc, err := time.LoadLocation(getEnv("CURTAINCALL_TZ", "Local"))
	if err != nil {
		return nil, fmt.Errorf("parse CURTAINCALL_TZ: %w", err)
	}
	cfg.Location = loc

	cfg.CollectCodeLimit, err = strconv.Atoi(getEnv("CURTAINCALL_COLLECT_CODE_LIMIT", "10"))
	if err != nil || cfg.CollectCodeLimit < 1 {
		return nil, fmt.Errorf("CURTAINCALL_COLLECT_CODE_LIMIT must be a positive integer")
	}

	cfg.CollectCodeWindow, err = time.ParseDuration(getEnv("CURTAINCALL_COLLECT_CODE_WINDOW", "1m"))
	if err != nil || cfg.CollectCodeWindow <= 0 {
		return nil, fmt.Errorf("CURTAINCALL_COLLECT_CODE_WINDOW must be a positive duration")
	}

	for _, o := range strings.Split(os.Getenv("CURTAINCALL_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
