package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/agent-portal/internal/config"
	"github.com/suPer8Hu/agent-portal/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:           "agent-portal",
	Short:         "Multi-tenant Slack, Azure OpenAI and Google Docs agent backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// setup loads the environment configuration and installs the global logger.
func setup() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	logger.New("agent-portal", cfg.LogLevel, !cfg.IsProduction())
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
