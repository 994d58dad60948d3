// Package pinkman is the command-line surface of the PR quality pipeline
package pinkman

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pinkman-dev/pinkman/internal/config"
	"github.com/pinkman-dev/pinkman/internal/observability"
	"go.uber.org/zap"
)

var (
	configPath string
	jsonOutput bool
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "pinkman",
	Short: "Automated pull request quality assurance",
	Long: `Pinkman analyzes pull requests with AI: it assesses risk, generates
Playwright tests, validates them, and can auto-fix CI failures.

Credentials come from the environment: GOOGLE_API_KEY, ANTHROPIC_API_KEY, or
OPENAI_API_KEY for the model provider, GITHUB_TOKEN for the GitHub API, and
DATABASE_URL for the feedback store.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of formatted text")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(fixCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig applies flags over file and env configuration
func loadConfig() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, observability.NewLogger(cfg.LogLevel), nil
}
