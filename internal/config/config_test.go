package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Platform.Socket != "/var/run/docker.sock" {
		t.Fatalf("unexpected default socket %q", cfg.Platform.Socket)
	}
	if cfg.Chaos.PFail != 0.3 || cfg.Chaos.Windows != 10 {
		t.Fatalf("unexpected chaos defaults: %+v", cfg.Chaos)
	}
	if cfg.Sim.Trials != 120000 {
		t.Fatalf("unexpected trial default %d", cfg.Sim.Trials)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := writeFile(t, "config.yaml", `
chaos:
  pFail: 0.2
  windows: 4
  window: 30s
  revealDelay: 5s
  measure: 10s
traces:
  bases: ["http://jaeger:16686/api"]
`)
	t.Setenv("CHAOS_ENGINE_P_FAIL", "0.4")
	t.Setenv("CHAOS_ENGINE_ARTIFACTS_DIR", "/tmp/out")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chaos.Windows != 4 || cfg.Chaos.Window != 30*time.Second {
		t.Fatalf("file values not applied: %+v", cfg.Chaos)
	}
	if cfg.Chaos.PFail != 0.4 {
		t.Fatalf("env override must win, got %v", cfg.Chaos.PFail)
	}
	if cfg.Artifacts.Dir != "/tmp/out" {
		t.Fatalf("artifacts dir override missing, got %q", cfg.Artifacts.Dir)
	}
	if len(cfg.Traces.Bases) != 1 || cfg.Traces.Bases[0] != "http://jaeger:16686/api" {
		t.Fatalf("trace bases not applied: %v", cfg.Traces.Bases)
	}
}

func TestLoadRejectsInvalidWindows(t *testing.T) {
	path := writeFile(t, "config.yaml", `
chaos:
  window: 20s
  revealDelay: 15s
  measure: 10s
`)
	if _, err := Load(path); err == nil {
		t.Fatal("measurement overflowing the window must be rejected")
	}
}

func TestLoadRejectsBadPFail(t *testing.T) {
	path := writeFile(t, "config.yaml", "chaos:\n  pFail: 1.5\n")
	if _, err := Load(path); err == nil {
		t.Fatal("pFail above 1 must be rejected")
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("explicit missing config file must be fatal")
	}
}
