package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Batch.Threshold != 50 {
		t.Errorf("got batch threshold=%d, want 50", cfg.Batch.Threshold)
	}
	if cfg.Batch.WindowMs != 1000 {
		t.Errorf("got batch window=%d, want 1000", cfg.Batch.WindowMs)
	}
	if cfg.Batch.FlushMs != 50 {
		t.Errorf("got flush=%d, want 50", cfg.Batch.FlushMs)
	}
	if cfg.Outbox.FlushSecs != 5 {
		t.Errorf("got outbox flush=%d, want 5", cfg.Outbox.FlushSecs)
	}
	if len(cfg.Generation.Models) == 0 {
		t.Error("default model chain should not be empty")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8790 {
		t.Errorf("got port=%d, want default 8790", cfg.Server.Port)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
port = 9999

[batch]
threshold = 25

[generation]
models = ["only-model"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("got port=%d, want 9999", cfg.Server.Port)
	}
	if cfg.Batch.Threshold != 25 {
		t.Errorf("got threshold=%d, want 25", cfg.Batch.Threshold)
	}
	if len(cfg.Generation.Models) != 1 || cfg.Generation.Models[0] != "only-model" {
		t.Errorf("got models=%v, want [only-model]", cfg.Generation.Models)
	}
	// Unset sections keep defaults
	if cfg.Batch.WindowMs != 1000 {
		t.Errorf("got window=%d, want default 1000", cfg.Batch.WindowMs)
	}
}

func TestLoad_EnvOverridesCredentials(t *testing.T) {
	t.Setenv("CORKBOARD_API_KEY", "env-key")
	t.Setenv("CORKBOARD_WEBHOOK_URL", "https://hooks.example.com/x")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Generation.APIKey != "env-key" {
		t.Errorf("got api key=%q, want env-key", cfg.Generation.APIKey)
	}
	if cfg.Notify.WebhookURL != "https://hooks.example.com/x" {
		t.Errorf("got webhook=%q", cfg.Notify.WebhookURL)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := ExpandPath("~/boards"); got != filepath.Join(home, "boards") {
		t.Errorf("got %q", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("got %q, want unchanged", got)
	}
}

func TestWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[server]\nport = 1000\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan *Config, 1)
	w, err := Watch(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("[server]\nport = 2000\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Server.Port != 2000 {
			t.Errorf("got port=%d, want 2000", cfg.Server.Port)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
