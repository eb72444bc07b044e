package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Bandit.Epsilon != 0.1 {
		t.Errorf("expected default epsilon 0.1, got %v", cfg.Bandit.Epsilon)
	}
	if cfg.Bandit.Store != "file" || cfg.Bandit.StatePath != "./bandit_state.json" {
		t.Errorf("unexpected default store %q at %q", cfg.Bandit.Store, cfg.Bandit.StatePath)
	}
	if cfg.Bandit.Codec != "json" {
		t.Errorf("expected default codec json, got %s", cfg.Bandit.Codec)
	}
	if cfg.Role.CognitiveLoadThreshold != 4 || cfg.Role.RelianceThreshold != 0.5 {
		t.Errorf("unexpected default thresholds %+v", cfg.Role)
	}
	if cfg.Telemetry.Exporter != "none" {
		t.Errorf("expected telemetry off by default, got %s", cfg.Telemetry.Exporter)
	}
	if cfg.DecisionLog.Enabled {
		t.Errorf("expected decision log off by default")
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("ROLECAST_BANDIT_EPSILON", "0.25")
	t.Setenv("ROLECAST_BANDIT_STATE_PATH", "/tmp/state.json")
	t.Setenv("ROLECAST_DECISION_LOG_ENABLED", "true")
	t.Setenv("ROLECAST_ROLE_RELIANCE_THRESHOLD", "0.7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Bandit.Epsilon != 0.25 {
		t.Errorf("expected epsilon 0.25 from env, got %v", cfg.Bandit.Epsilon)
	}
	if cfg.Bandit.StatePath != "/tmp/state.json" {
		t.Errorf("expected state path from env, got %s", cfg.Bandit.StatePath)
	}
	if !cfg.DecisionLog.Enabled {
		t.Errorf("expected decision log enabled from env")
	}
	if cfg.Role.RelianceThreshold != 0.7 {
		t.Errorf("expected reliance threshold 0.7, got %v", cfg.Role.RelianceThreshold)
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"ROLECAST_LOG_LEVEL":               "log.level",
		"ROLECAST_BANDIT_STATE_PATH":       "bandit.state_path",
		"ROLECAST_TELEMETRY_OTLP_ENDPOINT": "telemetry.otlp_endpoint",
		"ROLECAST_DECISION_LOG_ENABLED":    "decision_log.enabled",
		"ROLECAST_DEBUG":                   "debug",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadFileDoesNotLeakBetweenLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("bandit:\n  store: memory\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Bandit.Store != "memory" {
		t.Fatalf("expected memory store from file, got %s", cfg.Bandit.Store)
	}

	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Bandit.Store != "file" {
		t.Fatalf("previous file leaked into a fresh load: %s", cfg.Bandit.Store)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadWithProfile(t *testing.T) {
	tmpDir := t.TempDir()

	baseConfig := `
bandit:
  store: sqlite
  state_key: base
log:
  level: info
`
	basePath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(basePath, []byte(baseConfig), 0644); err != nil {
		t.Fatalf("failed to write base config: %v", err)
	}

	devConfig := `
bandit:
  state_key: dev
log:
  level: debug
`
	if err := os.WriteFile(filepath.Join(tmpDir, "config.dev.yaml"), []byte(devConfig), 0644); err != nil {
		t.Fatalf("failed to write dev config: %v", err)
	}

	prodConfig := `
bandit:
  state_key: prod
log:
  level: warn
`
	if err := os.WriteFile(filepath.Join(tmpDir, "config.prod.yaml"), []byte(prodConfig), 0644); err != nil {
		t.Fatalf("failed to write prod config: %v", err)
	}

	tests := []struct {
		name         string
		profile      string
		wantKey      string
		wantLogLevel string
	}{
		{"no profile - base only", "", "base", "info"},
		{"dev profile", "dev", "dev", "debug"},
		{"prod profile", "prod", "prod", "warn"},
		{"nonexistent profile - falls back to base", "staging", "base", "info"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadWithProfile(basePath, tc.profile)
			if err != nil {
				t.Fatalf("LoadWithProfile failed: %v", err)
			}
			if cfg.Bandit.StateKey != tc.wantKey {
				t.Errorf("state key: got %s, want %s", cfg.Bandit.StateKey, tc.wantKey)
			}
			if cfg.Log.Level != tc.wantLogLevel {
				t.Errorf("log level: got %s, want %s", cfg.Log.Level, tc.wantLogLevel)
			}
			// Not overridden by any profile.
			if cfg.Bandit.Store != "sqlite" {
				t.Errorf("store: got %s, want sqlite", cfg.Bandit.Store)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		set    string
		errSub string
	}{
		{"epsilon above one", "bandit.epsilon=1.5", "bandit.epsilon"},
		{"negative epsilon", "bandit.epsilon=-0.1", "bandit.epsilon"},
		{"unknown store", "bandit.store=redis", "bandit.store"},
		{"unknown codec", "bandit.codec=xml", "bandit.codec"},
		{"unknown exporter", "telemetry.exporter=zipkin", "telemetry.exporter"},
		{"unknown log format", "log.format=xml", "log.format"},
		{"empty state path", "bandit.state_path=", "bandit.state_path"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadWithCLI([]string{"--set", tc.set})
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.errSub) {
				t.Fatalf("expected error mentioning %s, got %v", tc.errSub, err)
			}
		})
	}
}

func TestProfileConfigPath(t *testing.T) {
	tmpDir := t.TempDir()

	devPath := filepath.Join(tmpDir, "config.dev.yaml")
	if err := os.WriteFile(devPath, []byte("test"), 0644); err != nil {
		t.Fatalf("failed to create dev config: %v", err)
	}
	basePath := filepath.Join(tmpDir, "config.yaml")

	tests := []struct {
		name     string
		base     string
		profile  string
		wantPath string
	}{
		{"existing profile", basePath, "dev", devPath},
		{"nonexistent profile", basePath, "prod", ""},
		{"empty profile", basePath, "", ""},
		{"empty base", "", "dev", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := profileConfigPath(tc.base, tc.profile)
			if got != tc.wantPath {
				t.Errorf("profileConfigPath(%q, %q) = %q, want %q", tc.base, tc.profile, got, tc.wantPath)
			}
		})
	}
}
