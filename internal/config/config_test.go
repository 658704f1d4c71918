package config

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" || cfg.Store.Driver != DriverSQLite {
		t.Fatalf("unexpected defaults: port=%q driver=%q", cfg.Port, cfg.Store.Driver)
	}
	if cfg.LLM.Timeout != 30*time.Second {
		t.Fatalf("GENERATION_TIMEOUT default = %v", cfg.LLM.Timeout)
	}
	if cfg.Knowledge.ChunkSize != 500 || cfg.Knowledge.TopK != 3 {
		t.Fatalf("knowledge defaults = %+v", cfg.Knowledge)
	}
	if cfg.Store.Retention != 0 {
		t.Fatalf("retention should be off by default, got %v", cfg.Store.Retention)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("GENERATION_TIMEOUT", "45")
	t.Setenv("SESSION_RETENTION", "720h")
	t.Setenv("CRAWL_RATE", "0.5")
	t.Setenv("LEADS_ENABLED", "off")
	t.Setenv("FRONTEND_URL", "https://zentiam.com/, https://www.zentiam.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("Port = %q", cfg.Port)
	}
	if cfg.LLM.Timeout != 45*time.Second {
		t.Fatalf("plain seconds not accepted: %v", cfg.LLM.Timeout)
	}
	if cfg.Store.Retention != 720*time.Hour {
		t.Fatalf("Retention = %v", cfg.Store.Retention)
	}
	if cfg.Knowledge.CrawlRate != 0.5 {
		t.Fatalf("CrawlRate = %v", cfg.Knowledge.CrawlRate)
	}
	if cfg.Leads.Enabled {
		t.Fatal("expected leads disabled")
	}
	origins := cfg.AllowedOrigins()
	if strings.Join(origins, ",") != "https://zentiam.com,https://www.zentiam.com" {
		t.Fatalf("AllowedOrigins = %v", origins)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown driver", map[string]string{"STORE_DRIVER": "postgres"}, "STORE_DRIVER"},
		{"mongo without uri", map[string]string{"STORE_DRIVER": "mongo"}, "MONGO_URI"},
		{"zero top k", map[string]string{"KB_TOP_K": "0"}, "KB_TOP_K"},
		{"negative retention", map[string]string{"SESSION_RETENTION": "-1h"}, "SESSION_RETENTION"},
		{"rate limit without window", map[string]string{"RATE_LIMIT_WINDOW": "0s"}, "RATE_LIMIT_WINDOW"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		format, level string
		debug         bool
		prefix        string
	}{
		{"json", "info", false, "{"},
		{"text", "debug", true, "time="},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			logger := (&Config{LogFormat: tt.format, LogLevel: tt.level}).NewLogger(&buf)
			if got := logger.Enabled(context.Background(), slog.LevelDebug); got != tt.debug {
				t.Fatalf("debug enabled = %v, want %v", got, tt.debug)
			}
			logger.Info("hello")
			if !strings.HasPrefix(buf.String(), tt.prefix) {
				t.Fatalf("output %q does not start with %q", buf.String(), tt.prefix)
			}
		})
	}
}
