package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ghonijee/money-tracker-ai-agent/internal/config"
)

// newConfigCmd registers subcommands that inspect or mutate the YAML config.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or modify moneytracker.yaml",
	}
	cmd.AddCommand(newConfigGetCmd(), newConfigSetCmd(), newConfigPromptsCmd())
	return cmd
}

// newConfigGetCmd prints the value referenced by a dotted key.
func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Read a config value by dotted key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.ReadMap(cfgFile)
			if err != nil {
				return err
			}
			value, ok := config.GetValue(data, args[0])
			if !ok {
				return fmt.Errorf("key %s not found", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), prettyValue(value))
			return nil
		},
	}
}

// newConfigSetCmd updates a dotted key with the provided value.
func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Update a config value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.ReadMap(cfgFile)
			if err != nil {
				return err
			}
			config.SetValue(data, args[0], args[1])
			if err := config.WriteMap(cfgFile, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s updated\n", args[0])
			return nil
		},
	}
}

func newConfigPromptsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prompts",
		Short: "List the available system prompt versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompts, err := config.LoadPrompts()
			if err != nil {
				return err
			}
			for _, v := range prompts.Versions() {
				marker := " "
				if v == globalCfg.Agent.PromptVersion {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, v)
			}
			return nil
		},
	}
}
