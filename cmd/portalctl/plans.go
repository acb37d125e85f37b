// AngelaMos | 2026
// plans.go

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/fertilityflow/portal/internal/catalog"
	"github.com/fertilityflow/portal/internal/notify"
	"github.com/fertilityflow/portal/internal/payment"
	"github.com/fertilityflow/portal/internal/purchase"
	"github.com/fertilityflow/portal/internal/user"
	"github.com/fertilityflow/portal/internal/webhook"
)

func plansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Payment plan maintenance",
	}
	cmd.AddCommand(plansRecheckCmd())
	return cmd
}

func plansRecheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recheck <subscription-id>...",
		Short: "Re-derive plan completion from paid Stripe invoices",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			logger := slog.Default()
			dispatcher := notify.NewDispatcher(1, len(args), env.cfg.Notify.Timeout, logger)
			notifier := notify.NewNotifier(
				notify.NewClient(env.cfg.Notify),
				dispatcher,
				env.cfg.Notify,
				env.cfg.App.PublicURL,
				logger,
			)
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := dispatcher.Shutdown(ctx); err != nil {
					logger.Warn("pending notifications dropped", "error", err)
				}
			}()

			reconciler := webhook.NewReconciler(
				payment.NewClient(env.cfg.Payments),
				purchase.NewRepository(env.db.DB),
				catalog.NewService(catalog.NewRepository(env.db.DB)),
				user.NewService(user.NewRepository(env.db.DB)),
				notifier,
				env.cfg.Payments.PlanInstallments,
			)

			out := cmd.OutOrStdout()
			var failed int
			for _, subID := range args {
				state, err := reconciler.RecheckPlan(cmd.Context(), subID)
				if err != nil {
					failed++
					fmt.Fprintf(out, "%s: %v\n", subID, err)
					continue
				}

				note := ""
				if state.Changed {
					note = " (marked complete)"
				}
				fmt.Fprintf(out, "%s [%s]: %d/%d invoices paid, complete=%t%s\n",
					subID, state.GatewayStatus, state.PaidInvoices, state.Required, state.Complete, note)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d subscriptions could not be rechecked", failed, len(args))
			}
			return nil
		},
	}
}
