// Package main provides the CLI entry point for the ServiceNow consulting
// assistant.
//
// # Basic Usage
//
// Start an interactive chat:
//
//	snconsultant chat
//
// Manage the semantic response cache:
//
//	snconsultant cache stats
//	snconsultant cache sweep
//	snconsultant cache purge --user alice
//
// # Environment Variables
//
//   - SNCONSULTANT_CONFIG: Path to configuration file (default: snconsultant.yaml)
//   - ANTHROPIC_API_KEY: Anthropic API key for the reasoning models
//   - OPENAI_API_KEY: OpenAI API key for embeddings
//   - SERVICENOW_INSTANCE_URL: Live instance URL (optional)
//   - SERVICENOW_USERNAME / SERVICENOW_PASSWORD: Instance credentials
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mailsabhi2007/SNConsultant/internal/config"
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "snconsultant",
		Short: "ServiceNow consulting assistant",
		Long: `A multi-agent ServiceNow consulting assistant. Requests are routed to the
specialist best suited to answer them: a consultant for advice and
documentation questions, a solution architect for configuration design,
and an implementation specialist with gated access to the live instance.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML configuration file (default: snconsultant.yaml if present)")

	rootCmd.AddCommand(
		buildChatCmd(&configPath),
		buildCacheCmd(&configPath),
	)
	return rootCmd
}

// loadConfig resolves the config path and loads it, falling back to the
// environment-driven defaults when no file exists.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("SNCONSULTANT_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat("snconsultant.yaml"); err == nil {
			path = "snconsultant.yaml"
		}
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
