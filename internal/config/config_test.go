package config

import (
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", "http://node-a:8080")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if cfg.Port != 8080 || cfg.Addr() != ":8080" {
		t.Fatalf("unexpected port: %d", cfg.Port)
	}
	if cfg.DatabaseType != "SQLITE" || cfg.SQLitePath != "./data/media.db" {
		t.Fatalf("unexpected database settings: %s %s", cfg.DatabaseType, cfg.SQLitePath)
	}
	if cfg.MaxFileSize != 50<<20 || cfg.MaxOutputEdge != 4096 {
		t.Fatalf("unexpected limits: %d %d", cfg.MaxFileSize, cfg.MaxOutputEdge)
	}
	if cfg.EventSubject != "media.artifacts" || cfg.VariantCacheTTL != time.Hour {
		t.Fatalf("unexpected event/cache settings: %s %s", cfg.EventSubject, cfg.VariantCacheTTL)
	}
	if cfg.AuthRequired || cfg.NATSURL != "" || cfg.RedisURL != "" {
		t.Fatal("optional features should be disabled by default")
	}
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", "https://media.example.com")
	t.Setenv("PORT", "9000")
	t.Setenv("DATABASE_TYPE", "postgres")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("API_AUTH_ENABLED", "true")
	t.Setenv("MASTER_API_KEY", "master")
	t.Setenv("VARIANT_CACHE_TTL", "5m")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if cfg.DatabaseType != "POSTGRES" {
		t.Fatalf("database type not normalised: %s", cfg.DatabaseType)
	}
	sc := cfg.Store()
	if sc.Type != "POSTGRES" || sc.Port != 5433 {
		t.Fatalf("unexpected store config: %+v", sc)
	}
	if !cfg.AuthRequired || cfg.VariantCacheTTL != 5*time.Minute {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing server address", map[string]string{}},
		{"relative server address", map[string]string{"SERVER_ADDRESS": "node-a"}},
		{"invalid port", map[string]string{"SERVER_ADDRESS": "http://a", "PORT": "not-a-number"}},
		{"zero file size", map[string]string{"SERVER_ADDRESS": "http://a", "MAX_FILE_SIZE": "0"}},
		{"negative output edge", map[string]string{"SERVER_ADDRESS": "http://a", "MAX_OUTPUT_IMAGE_EDGE": "-1"}},
		{"quality out of range", map[string]string{"SERVER_ADDRESS": "http://a", "WEBP_QUALITY": "101"}},
		{"unknown database", map[string]string{"SERVER_ADDRESS": "http://a", "DATABASE_TYPE": "oracle"}},
		{"auth without master key", map[string]string{"SERVER_ADDRESS": "http://a", "API_AUTH_ENABLED": "true"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SERVER_ADDRESS", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Parse(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
