package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTPPort != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.HTTPPort)
	}
	if cfg.ExecutionTimeout != 600*time.Second {
		t.Fatalf("expected 600s execution timeout, got %v", cfg.ExecutionTimeout)
	}
	if cfg.TurnLimits.Coordinator != 8 || cfg.TurnLimits.Specialist != 2 {
		t.Fatalf("unexpected turn limits: %+v", cfg.TurnLimits)
	}
	if cfg.CoverageThreshold != 1.0 {
		t.Fatalf("expected coverage threshold 1.0, got %v", cfg.CoverageThreshold)
	}
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skyops.yaml")
	data := []byte("turn_limits:\n  coordinator: 12\n  specialist: 3\ncoverage_threshold: 0.8\nexecution_timeout_seconds: 120\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("SKYOPS_CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.TurnLimits.Coordinator != 12 || cfg.TurnLimits.Specialist != 3 {
		t.Fatalf("overlay turn limits not applied: %+v", cfg.TurnLimits)
	}
	if cfg.CoverageThreshold != 0.8 {
		t.Fatalf("overlay coverage threshold not applied: %v", cfg.CoverageThreshold)
	}
	if cfg.ExecutionTimeout != 120*time.Second {
		t.Fatalf("overlay timeout not applied: %v", cfg.ExecutionTimeout)
	}
}

func TestLoadOverlayMissingFile(t *testing.T) {
	t.Setenv("SKYOPS_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing overlay file")
	}
}
