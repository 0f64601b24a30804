package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8787" {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.Storage != "memory" {
		t.Fatalf("expected memory storage, got %q", cfg.Storage)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("expected 10s shutdown timeout, got %s", cfg.ShutdownTimeout)
	}
	if cfg.LiveFramework != "soc2" {
		t.Fatalf("expected soc2 live framework, got %q", cfg.LiveFramework)
	}
	if cfg.LinkTTL != 15*time.Minute {
		t.Fatalf("expected 15m link ttl, got %s", cfg.LinkTTL)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONTROLROOM_STORAGE", "Redis")
	t.Setenv("CONTROLROOM_SMTP_HOST", "smtp.example.com")
	t.Setenv("CONTROLROOM_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage != "redis" {
		t.Fatalf("expected redis storage, got %q", cfg.Storage)
	}
	if cfg.SMTP.Host != "smtp.example.com" {
		t.Fatalf("expected smtp host override, got %q", cfg.SMTP.Host)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected debug log level, got %q", cfg.Log.Level)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "controlroom.yaml")
	content := "addr: \":9000\"\nstorage: postgres\nartifacts:\n  bucket: audit-files\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.Storage != "postgres" || cfg.Artifacts.Bucket != "audit-files" {
		t.Fatalf("unexpected config from file: %+v", cfg)
	}
}

func TestLoadRejectsUnknownStorage(t *testing.T) {
	t.Setenv("CONTROLROOM_STORAGE", "localstorage")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown storage backend")
	}
}
