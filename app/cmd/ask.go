package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ghonijee/money-tracker-ai-agent/internal/runtime"
)

func newAskCmd() *cobra.Command {
	var phone string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Send one message to the agent and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if phone == "" {
				return fmt.Errorf("--phone required")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			rt, err := loadRuntime(ctx, runtime.Options{LogOutput: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer rt.Close()

			answer, err := rt.Agent.Ask(ctx, phone, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number the message is sent from")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Minute, "Overall time limit")
	return cmd
}
