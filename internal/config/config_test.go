package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "knolnote.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() returned an unexpected error: %v", err)
	}
	if cfg.DB != "knolnote.db" || cfg.ReposDir != "repos" || cfg.Addr != ":8080" {
		t.Errorf("Unexpected defaults %+v", cfg)
	}
	if cfg.LeechThreshold != 8 {
		t.Errorf("Expected leech threshold 8, but got %d", cfg.LeechThreshold)
	}
	if cfg.FailDelay != 1500*time.Millisecond {
		t.Errorf("Expected fail delay 1.5s, but got %v", cfg.FailDelay)
	}
	if cfg.AutoPlay.Front != 3*time.Second || cfg.AutoPlay.Back != 2*time.Second {
		t.Errorf("Unexpected auto-play delays %+v", cfg.AutoPlay)
	}
	if cfg.Serve || cfg.Sync || cfg.AddSource != "" {
		t.Errorf("Expected no action, but got %+v", cfg)
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("Expected info level, but got %v", cfg.SlogLevel())
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, `
db: file.db
addr: ":9000"
leech_threshold: 5
autoplay:
  front: 4s
ai:
  provider: openai
  model: file-model
`)
	t.Setenv("KNOLNOTE_ADDR", ":9100")
	t.Setenv("KNOLNOTE_AI__MODEL", "env-model")
	t.Setenv("KNOLNOTE_LOG_LEVEL", "debug")

	cfg, err := Load([]string{"--config", path, "--leech-threshold", "3", "--serve"})
	if err != nil {
		t.Fatalf("Load() returned an unexpected error: %v", err)
	}

	if cfg.DB != "file.db" {
		t.Errorf("Expected the file to set db, but got %q", cfg.DB)
	}
	if cfg.Addr != ":9100" {
		t.Errorf("Expected the environment to override addr, but got %q", cfg.Addr)
	}
	if cfg.LeechThreshold != 3 {
		t.Errorf("Expected the flag to override the threshold, but got %d", cfg.LeechThreshold)
	}
	if cfg.AutoPlay.Front != 4*time.Second || cfg.AutoPlay.Back != 2*time.Second {
		t.Errorf("Unexpected auto-play delays %+v", cfg.AutoPlay)
	}
	if cfg.AI.Provider != "openai" || cfg.AI.Model != "env-model" {
		t.Errorf("Unexpected AI settings %+v", cfg.AI)
	}
	if !cfg.Serve {
		t.Error("Expected serve to be set")
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("Expected debug level, but got %v", cfg.SlogLevel())
	}
}

func TestLoadValidation(t *testing.T) {
	t.Chdir(t.TempDir())

	testCases := []struct {
		name string
		args []string
	}{
		{"zero leech threshold", []string{"--leech-threshold", "0"}},
		{"unknown log level", []string{"--log-level", "loud"}},
		{"unknown provider", []string{"--ai-provider", "parrot"}},
		{"zero fail delay", []string{"--fail-delay", "0s"}},
		{"unknown flag", []string{"--nope"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(tc.args); err == nil {
				t.Errorf("Expected an error for %v", tc.args)
			}
		})
	}
}

func TestLoadMissingExplicitConfig(t *testing.T) {
	if _, err := Load([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Error("Expected an error for a missing explicit config file")
	}
}
