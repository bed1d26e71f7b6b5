package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist, got %v", err)
	}
	if cfg != Defaults() {
		t.Fatalf("missing file should leave defaults intact: %+v", cfg)
	}
	if cfg.Addr != ":8080" || cfg.MaxSessions != 256 {
		t.Fatalf("defaults: %+v", cfg)
	}
}

func TestLoad_OverlaysOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	src := "addr: \":9090\"\nidle_expiry_sec: 60\ndisable_db: true\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" || !cfg.DisableDB {
		t.Fatalf("overlay: %+v", cfg)
	}
	// Unset keys keep their defaults.
	if cfg.PuzzleDir != "./puzzles" || cfg.MaxSessions != 256 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if cfg.IdleExpiry() != time.Minute {
		t.Fatalf("idle expiry = %v", cfg.IdleExpiry())
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(path, []byte("addr: [unclosed"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
