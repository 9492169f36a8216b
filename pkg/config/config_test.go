package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.SessionID = "firekid~abc123"
	cfg.Repo.URL = "https://example.com/bundles.git"
	cfg.Repo.Token = "token"
	cfg.AdminAPIKey = "secret"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Prefix != "." {
		t.Errorf("Expected default prefix %q, got %q", ".", cfg.Prefix)
	}
	if cfg.Port != 3000 {
		t.Errorf("Expected default port 3000, got %d", cfg.Port)
	}
	if cfg.Database.Type != "sqlite" {
		t.Errorf("Expected default database type sqlite, got %s", cfg.Database.Type)
	}
	if cfg.Reconnect.DelaySeconds != 5 {
		t.Errorf("Expected default reconnect delay 5, got %d", cfg.Reconnect.DelaySeconds)
	}
}

func TestValidateRequiresSessionID(t *testing.T) {
	cfg := validConfig()
	cfg.SessionID = ""

	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for missing session_id")
	}
}

func TestValidateRequiresAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.AdminAPIKey = ""

	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for missing admin_api_key")
	}
}

func TestValidateRejectsBadDatabaseType(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Type = "mongodb"

	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for unsupported database type")
	}
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	cfg := validConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config, got error: %v", err)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
session_id: firekid~abc123
prefix: "!"
port: 8090
admin_api_key: secret
repo:
  url: https://example.com/bundles.git
  token: token
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Prefix != "!" {
		t.Errorf("Expected prefix %q, got %q", "!", cfg.Prefix)
	}
	if cfg.Port != 8090 {
		t.Errorf("Expected port 8090, got %d", cfg.Port)
	}
	// Defaults survive a partial file.
	if cfg.Database.Type != "sqlite" {
		t.Errorf("Expected database type sqlite, got %s", cfg.Database.Type)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SESSION_ID", "env-session")
	t.Setenv("PREFIX", "#")
	t.Setenv("PORT", "9001")
	t.Setenv("ADMIN_API_KEY", "env-key")
	t.Setenv("REPO_URL", "https://example.com/r.git")
	t.Setenv("REPO_TOKEN", "tok")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.SessionID != "env-session" {
		t.Errorf("Expected env session id, got %s", cfg.SessionID)
	}
	if cfg.Prefix != "#" {
		t.Errorf("Expected env prefix, got %s", cfg.Prefix)
	}
	if cfg.Port != 9001 {
		t.Errorf("Expected env port, got %d", cfg.Port)
	}
}

func TestLoadOrCreateIdentity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".bot-config.json")

	first, err := LoadOrCreateIdentity(path)
	if err != nil {
		t.Fatalf("LoadOrCreateIdentity failed: %v", err)
	}
	if first.BotID == "" {
		t.Fatal("Expected non-empty bot ID")
	}

	second, err := LoadOrCreateIdentity(path)
	if err != nil {
		t.Fatalf("LoadOrCreateIdentity reload failed: %v", err)
	}
	if second.BotID != first.BotID {
		t.Errorf("Expected stable bot ID across loads, got %s and %s", first.BotID, second.BotID)
	}
}
