package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ghonijee/money-tracker-ai-agent/app/tui"
	"github.com/ghonijee/money-tracker-ai-agent/internal/runtime"
)

func newChatCmd() *cobra.Command {
	var phone string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the agent in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if phone == "" {
				return fmt.Errorf("--phone required")
			}
			// Logs would draw over the alternate screen.
			rt, err := loadRuntime(cmd.Context(), runtime.Options{LogOutput: io.Discard})
			if err != nil {
				return err
			}
			defer rt.Close()
			return tui.Run(cmd.Context(), rt.Agent, tui.Options{
				Phone:   phone,
				Model:   strings.Join(rt.Config.LLM.Models, ","),
				Timeout: rt.Config.LLMTimeout() * 3,
			})
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number to chat as")
	return cmd
}
