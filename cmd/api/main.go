// Command api serves the research backend and runs one-off research from
// the command line.
package main

import (
	"fmt"
	"os"

	"research/backend/internal/config"
	"research/backend/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "api",
	Short: "Privacy-preserving research backend",
	Long: `api anonymizes a private context, turns an objective into web search
queries, and returns the documents judged relevant.

Without a subcommand it starts the HTTP server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the config with the given flags bound to their env
// keys. Flags win over the environment only when set explicitly.
func loadConfig(cmd *cobra.Command, bindings map[string]string) (config.Config, error) {
	config.LoadEnvFiles()

	v := viper.New()
	for key, name := range bindings {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return config.Config{}, fmt.Errorf("bind --%s: %w", name, err)
		}
	}

	cfg, err := config.LoadFrom(v)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
