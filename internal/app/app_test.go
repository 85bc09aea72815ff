package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg == nil {
		t.Fatal("expected non-nil config")
	}

	if cfg.TokenSecret != "test-token-secret" {
		t.Errorf("TokenSecret = %q, want test-token-secret", cfg.TokenSecret)
	}

	// Verify that slog global logger is configured for JSON output
	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_AppliesLogLevel(t *testing.T) {
	setTestEnv(t)
	t.Setenv("LOG_LEVEL", "warn")

	var buf bytes.Buffer
	if _, err := Init(&buf); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	slog.Default().Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info log should be suppressed at warn level, got %s", buf.String())
	}
	slog.Default().Warn("shown")
	if !bytes.Contains(buf.Bytes(), []byte("shown")) {
		t.Errorf("warn log missing: %s", buf.String())
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	setTestEnv(t)
	// Clear all required env vars
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TOKEN_SECRET", "")
	t.Setenv("BASE_URL", "")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	got := maskDatabaseURL("postgres://user:secret@db:5432/skyline")
	if bytes.Contains([]byte(got), []byte("secret")) {
		t.Errorf("maskDatabaseURL leaked credentials: %s", got)
	}
	if maskDatabaseURL("short") != "***" {
		t.Errorf("short URL should be fully masked")
	}
}
