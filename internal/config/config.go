package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General    GeneralConfig    `toml:"general"`
	Server     ServerConfig     `toml:"server"`
	Generation GenerationConfig `toml:"generation"`
	Scheduler  SchedulerConfig  `toml:"scheduler"`
	Batch      BatchConfig      `toml:"batch"`
	Outbox     OutboxConfig     `toml:"outbox"`
	Notify     NotifyConfig     `toml:"notifications"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	DataDir string `toml:"data_dir"`
}

// ServerConfig holds the engine's listen settings
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// GenerationConfig holds external generation API settings. The API key is
// opaque to the engine and only passed through on outbound calls.
type GenerationConfig struct {
	Endpoint string   `toml:"endpoint"`
	APIKey   string   `toml:"api_key"`
	Models   []string `toml:"models"`
}

// SchedulerConfig holds alarm-loop settings
type SchedulerConfig struct {
	BriefingCron     string `toml:"briefing_cron"`
	PollSecs         int    `toml:"poll_secs"`
	RetryMins        int    `toml:"retry_mins"`
	SuccessCycleMins int    `toml:"success_cycle_mins"`
}

// BatchConfig holds write-coalescing thresholds
type BatchConfig struct {
	Threshold int `toml:"threshold"`
	WindowMs  int `toml:"window_ms"`
	FlushMs   int `toml:"flush_ms"`
}

// OutboxConfig holds client outbox settings
type OutboxConfig struct {
	FlushSecs  int `toml:"flush_secs"`
	FlushLimit int `toml:"flush_limit"`
}

// NotifyConfig holds outbound notification settings
type NotifyConfig struct {
	WebhookURL string  `toml:"webhook_url"`
	BurstCap   int     `toml:"burst_cap"`
	TokensPerS float64 `toml:"tokens_per_sec"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			DataDir: filepath.Join(home, ".corkboard"),
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8790,
		},
		Generation: GenerationConfig{
			Endpoint: "https://api.example.com/v1/generate",
			Models:   []string{"primary-large", "standard", "economy"},
		},
		Scheduler: SchedulerConfig{
			BriefingCron:     "0 9 * * *",
			PollSecs:         60,
			RetryMins:        5,
			SuccessCycleMins: 60,
		},
		Batch: BatchConfig{
			Threshold: 50,
			WindowMs:  1000,
			FlushMs:   50,
		},
		Outbox: OutboxConfig{
			FlushSecs:  5,
			FlushLimit: 50,
		},
		Notify: NotifyConfig{
			BurstCap:   5,
			TokensPerS: 1,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults.
// Credentials may be supplied through the environment instead of the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.General.DataDir = ExpandPath(cfg.General.DataDir)
	applyEnv(cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CORKBOARD_API_KEY"); v != "" {
		cfg.Generation.APIKey = v
	}
	if v := os.Getenv("CORKBOARD_WEBHOOK_URL"); v != "" {
		cfg.Notify.WebhookURL = v
	}
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "corkboard", "config.toml")
}
