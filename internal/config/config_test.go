package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Database.URL != "" {
		t.Errorf("Database.URL = %q, want empty (memory store)", cfg.Database.URL)
	}
	if cfg.Stream.Framing != "ndjson" {
		t.Errorf("Stream.Framing = %q, want ndjson", cfg.Stream.Framing)
	}
	if !cfg.Auth.Required {
		t.Error("Auth.Required should default to true")
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("RECIPE_PORT", "9090")
	t.Setenv("RECIPE_API_KEYS", "k1:alice, k2:bob ,broken,:nobody")
	t.Setenv("S3_PRESIGN_TTL", "90m")
	t.Setenv("RECIPE_REQUIRE_AUTH", "false")
	t.Setenv("RECIPE_AGENT_MAX_STEPS", "not-a-number")

	cfg := Load()
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if len(cfg.Auth.APIKeys) != 2 || cfg.Auth.APIKeys["k1"] != "alice" || cfg.Auth.APIKeys["k2"] != "bob" {
		t.Errorf("APIKeys = %v", cfg.Auth.APIKeys)
	}
	if cfg.Storage.PresignTTL != 90*time.Minute {
		t.Errorf("PresignTTL = %v, want 90m", cfg.Storage.PresignTTL)
	}
	if cfg.Auth.Required {
		t.Error("Auth.Required = true, want false")
	}
	if cfg.Agent.MaxSteps != 5 {
		t.Errorf("MaxSteps = %d, want fallback 5", cfg.Agent.MaxSteps)
	}
}

func TestLoad_CORSOrigins(t *testing.T) {
	if got := Load().CORS.AllowedOrigins; len(got) != 1 || got[0] != "*" {
		t.Errorf("default AllowedOrigins = %v, want [*]", got)
	}

	t.Setenv("RECIPE_CORS_ORIGINS", "https://a.example, ,https://b.example")
	got := Load().CORS.AllowedOrigins
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", got)
	}
}
