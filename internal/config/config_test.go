package config

import (
	"reflect"
	"testing"
	"time"
)

var keys = []string{
	"JWT_SECRET", "SNAPSHOT_TTL", "HTTP_ADDR", "DB_DRIVER", "DB_PATH", "DB_HOST",
	"DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "REDIS_ADDR", "CORS_ORIGINS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.RedisAddr != "localhost:6379" {
		t.Errorf("Unexpected addresses: %+v", cfg)
	}
	if cfg.DB.Driver != "postgres" || cfg.DB.Port != "5432" || cfg.DB.DBName != "quizz" {
		t.Errorf("Unexpected db config: %+v", cfg.DB)
	}
	if cfg.SnapshotTTL != 24*time.Hour {
		t.Errorf("Expected 24h TTL, got %v", cfg.SnapshotTTL)
	}
	if !reflect.DeepEqual(cfg.CORSOrigins, []string{"http://localhost:3000"}) {
		t.Errorf("Unexpected origins: %v", cfg.CORSOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", "/tmp/q.db")
	t.Setenv("SNAPSHOT_TTL", "90m")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTPAddr != ":9090" || cfg.DB.Driver != "sqlite" || cfg.DB.Path != "/tmp/q.db" {
		t.Errorf("Unexpected config: %+v", cfg)
	}
	if cfg.SnapshotTTL != 90*time.Minute {
		t.Errorf("Expected 90m TTL, got %v", cfg.SnapshotTTL)
	}
	want := []string{"https://a.example", "https://b.example"}
	if !reflect.DeepEqual(cfg.CORSOrigins, want) {
		t.Errorf("Expected %v, got %v", want, cfg.CORSOrigins)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{}},
		{"bad ttl", map[string]string{"JWT_SECRET": "x", "SNAPSHOT_TTL": "soon"}},
		{"negative ttl", map[string]string{"JWT_SECRET": "x", "SNAPSHOT_TTL": "-1h"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}
