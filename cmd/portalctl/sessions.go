// AngelaMos | 2026
// sessions.go

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fertilityflow/portal/internal/auth"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Refresh-token housekeeping",
	}
	cmd.AddCommand(sessionsPruneCmd())
	return cmd
}

func sessionsPruneCmd() *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete refresh tokens that expired more than --grace ago",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if grace < 0 {
				return fmt.Errorf("--grace must not be negative")
			}

			env, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			n, err := auth.NewSessionStore(env.db.DB).Prune(cmd.Context(), time.Now().Add(-grace))
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d expired sessions\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 24*time.Hour, "keep expired sessions this long for audit")
	return cmd
}
