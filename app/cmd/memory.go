package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ghonijee/money-tracker-ai-agent/internal/identity"
	"github.com/ghonijee/money-tracker-ai-agent/internal/logging"
	"github.com/ghonijee/money-tracker-ai-agent/internal/runtime"
	"github.com/ghonijee/money-tracker-ai-agent/persistence"
)

func newMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect or reset per-user conversation memory",
	}
	cmd.AddCommand(newMemoryShowCmd(), newMemoryClearCmd(), newMemorySummaryCmd(), newMemoryLogsCmd())
	return cmd
}

func newMemoryShowCmd() *cobra.Command {
	var phone string
	var limit int
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the most recent turns stored for a phone number",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(db *sql.DB, userID func(string) string) error {
				turns, err := persistence.NewMemoryStore(db).List(cmd.Context(), userID(phone), limit)
				if err != nil {
					return err
				}
				if len(turns) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no memory stored")
					return nil
				}
				for _, turn := range turns {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %-9s %s\n", turn.CreatedAt.Format(time.DateTime), turn.Role, turn.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number")
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of turns")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func newMemoryClearCmd() *cobra.Command {
	var phone string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored turn for a phone number",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(db *sql.DB, userID func(string) string) error {
				if err := persistence.NewMemoryStore(db).Clear(cmd.Context(), userID(phone)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "memory cleared for %s\n", phone)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func newMemorySummaryCmd() *cobra.Command {
	var phone string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the memory summary the agent would see",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context(), runtime.Options{LogOutput: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer rt.Close()
			fmt.Fprintln(cmd.OutOrStdout(), rt.Memory.Summarize(cmd.Context(), rt.Agent.Hasher.UserID(phone)))
			return nil
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func newMemoryLogsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the most recent model calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(db *sql.DB, _ func(string) string) error {
				entries, err := persistence.NewMessageLogStore(db).Recent(cmd.Context(), limit)
				if err != nil {
					return err
				}
				for _, e := range entries {
					status := "ok"
					if !e.Status {
						status = "error: " + e.Error
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s %s\n", e.Datetime.Format(time.DateTime), e.RunID, e.Model, status)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of entries")
	return cmd
}

// withStore opens the database and a hasher for commands that only need
// storage.
func withStore(ctx context.Context, fn func(db *sql.DB, userID func(string) string) error) error {
	hasher, err := identity.NewHasher(globalCfg.SecretKey)
	if err != nil {
		return err
	}
	logger := logging.New(globalCfg.LogLevel, globalCfg.LogFormat, nil)
	db, err := persistence.OpenAndMigrate(ctx, globalCfg.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db, hasher.UserID)
}
