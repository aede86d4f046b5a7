package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ghonijee/money-tracker-ai-agent/internal/runtime"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and WhatsApp webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := loadRuntime(ctx, runtime.Options{LogOutput: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer rt.Close()

			if addr == "" {
				addr = rt.Config.HTTPAddr
			}
			err = rt.Server().ServeContext(ctx, addr)
			if errors.Is(err, context.Canceled) {
				rt.Logger.Info().Msg("server stopped")
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to http_addr)")
	return cmd
}
