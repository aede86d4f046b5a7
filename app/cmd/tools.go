package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ghonijee/money-tracker-ai-agent/tools"
)

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect the tools exposed to the model",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tools with their parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := globalCfg.SecretKey
			if secret == "" {
				// Listing needs no real identities.
				secret = "listing"
			}
			list, err := tools.FinanceTools(tools.Deps{SecretKey: secret})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, tool := range list {
				fmt.Fprintf(out, "%s · %s\n", tool.Name(), tool.Description())
				var params []string
				for _, p := range tool.Parameters() {
					name := p.Name
					if p.Required {
						name += "*"
					}
					params = append(params, name+":"+p.Type)
				}
				if len(params) > 0 {
					fmt.Fprintf(out, "  args: %s\n", strings.Join(params, ", "))
				}
			}
			return nil
		},
	})
	return cmd
}
