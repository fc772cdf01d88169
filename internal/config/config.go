package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"quizz/pkg/database"
)

// Config holds everything cmd/server needs to start.
type Config struct {
	HTTPAddr    string
	DB          database.Config
	RedisAddr   string
	SnapshotTTL time.Duration
	JWTSecret   string
	CORSOrigins []string
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable is required")
	}

	ttl, err := envDuration("SNAPSHOT_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	return &Config{
		HTTPAddr: envOr("HTTP_ADDR", ":8080"),
		DB: database.Config{
			Driver:   envOr("DB_DRIVER", "postgres"),
			Path:     envOr("DB_PATH", "./data/quizz.db"),
			Host:     envOr("DB_HOST", "localhost"),
			Port:     envOr("DB_PORT", "5432"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			DBName:   envOr("DB_NAME", "quizz"),
		},
		RedisAddr:   envOr("REDIS_ADDR", "localhost:6379"),
		SnapshotTTL: ttl,
		JWTSecret:   jwtSecret,
		CORSOrigins: csvOr("CORS_ORIGINS", []string{"http://localhost:3000"}),
	}, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}

func csvOr(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
