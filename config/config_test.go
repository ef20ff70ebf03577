package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.PollInterval.Duration != 5*time.Second {
		t.Errorf("PollInterval = %s, want 5s", cfg.PollInterval)
	}
	if cfg.MaxWaitSeconds != 300 {
		t.Errorf("MaxWaitSeconds = %d, want 300", cfg.MaxWaitSeconds)
	}
	if cfg.DefaultTimeout.Duration != 30*time.Second {
		t.Errorf("DefaultTimeout = %s, want 30s", cfg.DefaultTimeout)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	content := "poll_interval: 2s\ndebug: true\n"
	if err := os.WriteFile(filepath.Join(dir, ".telegram-mcp.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.PollInterval.Duration != 2*time.Second {
		t.Errorf("PollInterval = %s, want 2s", cfg.PollInterval)
	}
	if !cfg.Debug {
		t.Error("Debug = false, want true")
	}
	// Unset fields keep defaults
	if cfg.MaxWaitSeconds != 300 {
		t.Errorf("MaxWaitSeconds = %d, want default 300", cfg.MaxWaitSeconds)
	}
	if cfg.LockRetries != 8 {
		t.Errorf("LockRetries = %d, want default 8", cfg.LockRetries)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".telegram-mcp.yaml"), []byte("poll_interval: banana\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(dir); err == nil {
		t.Error("expected error for invalid duration, got nil")
	}
}

func TestLoad_DebugEnvOverride(t *testing.T) {
	t.Setenv("TELEGRAM_MCP_DEBUG", "1")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Debug {
		t.Error("TELEGRAM_MCP_DEBUG=1 should force Debug on")
	}
}

func TestValidate_RejectsNonPositive(t *testing.T) {
	cfg := Default()
	cfg.MaxWaitSeconds = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for negative max_wait_seconds")
	}
}
