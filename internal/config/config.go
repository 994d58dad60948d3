// Package config loads pipeline configuration from an optional YAML file with
// environment-variable overrides for credentials.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// GatewayConfig configures the model gateway
type GatewayConfig struct {
	Provider          string        `yaml:"provider"` // google, anthropic, openai
	Model             string        `yaml:"model"`
	APIKey            string        `yaml:"-"` // env only, never from file
	MaxTokens         int           `yaml:"max_tokens"`
	Temperature       float64       `yaml:"temperature"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

// ExecutorConfig is the autonomous executor's safety envelope
type ExecutorConfig struct {
	WorkDir  string `yaml:"work_dir"`
	MaxFiles int    `yaml:"max_files"`
	MaxBytes int64  `yaml:"max_bytes"`
	DryRun   bool   `yaml:"dry_run"`
}

// PipelineConfig bounds the iterative loops
type PipelineConfig struct {
	MaxCorrectionRounds int `yaml:"max_correction_rounds"`
	MaxFixAttempts      int `yaml:"max_fix_attempts"`
	MaxCandidates       int `yaml:"max_candidates"`
}

// Config is the full process configuration
type Config struct {
	Gateway     GatewayConfig  `yaml:"gateway"`
	Executor    ExecutorConfig `yaml:"executor"`
	Pipeline    PipelineConfig `yaml:"pipeline"`
	DatabaseURL string         `yaml:"-"` // env only
	GitHubToken string         `yaml:"-"` // env only
	LogLevel    string         `yaml:"log_level"`
}

// Default returns the baseline configuration before file and env overlays
func Default() Config {
	return Config{
		Gateway: GatewayConfig{
			Provider:          "google",
			Model:             "gemini-2.5-flash",
			MaxTokens:         8192,
			Temperature:       0.1,
			Timeout:           90 * time.Second,
			MaxRetries:        3,
			RequestsPerMinute: 30,
		},
		Executor: ExecutorConfig{
			WorkDir:  ".",
			MaxFiles: 20,
			MaxBytes: 1 << 20,
		},
		Pipeline: PipelineConfig{
			MaxCorrectionRounds: 3,
			MaxFixAttempts:      2,
			MaxCandidates:       5,
		},
		LogLevel: "info",
	}
}

// Load reads configuration from path (if non-empty) over defaults, then
// applies environment overrides. Credentials come from env only.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	switch c.Gateway.Provider {
	case "anthropic":
		c.Gateway.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		c.Gateway.APIKey = os.Getenv("OPENAI_API_KEY")
	default:
		c.Gateway.APIKey = os.Getenv("GOOGLE_API_KEY")
	}
	c.DatabaseURL = os.Getenv("DATABASE_URL")
	c.GitHubToken = os.Getenv("GITHUB_TOKEN")
	if lvl := os.Getenv("PINKMAN_LOG_LEVEL"); lvl != "" {
		c.LogLevel = lvl
	}
}

func (c *Config) validate() error {
	if c.Pipeline.MaxCorrectionRounds < 1 {
		return fmt.Errorf("max_correction_rounds must be at least 1, got %d", c.Pipeline.MaxCorrectionRounds)
	}
	if c.Pipeline.MaxFixAttempts < 1 {
		return fmt.Errorf("max_fix_attempts must be at least 1, got %d", c.Pipeline.MaxFixAttempts)
	}
	if c.Executor.MaxFiles < 1 || c.Executor.MaxBytes < 1 {
		return fmt.Errorf("executor ceilings must be positive")
	}
	switch c.Gateway.Provider {
	case "google", "anthropic", "openai":
	default:
		return fmt.Errorf("unknown gateway provider: %q", c.Gateway.Provider)
	}
	return nil
}
