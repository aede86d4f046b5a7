package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ghonijee/money-tracker-ai-agent/internal/config"
	"github.com/ghonijee/money-tracker-ai-agent/internal/runtime"
)

var (
	cfgFile  string
	logLevel string

	globalCfg *config.Config
)

// Execute is the entry point for the CLI.
func Execute(ctx context.Context) {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCmd wires the cobra tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "moneytracker",
		Short:         "Conversational money tracker agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile == "" {
				cfgFile = config.DefaultPath
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			globalCfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to moneytracker.yaml")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	root.AddCommand(
		newServeCmd(),
		newAskCmd(),
		newChatCmd(),
		newMigrateCmd(),
		newToolsCmd(),
		newMemoryCmd(),
		newConfigCmd(),
	)
	return root
}

// loadRuntime bootstraps the shared runtime from the loaded configuration.
func loadRuntime(ctx context.Context, opts runtime.Options) (*runtime.Runtime, error) {
	if globalCfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return runtime.New(ctx, globalCfg, opts)
}
