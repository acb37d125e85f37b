// AngelaMos | 2026
// prices.go

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fertilityflow/portal/internal/catalog"
	"github.com/fertilityflow/portal/internal/payment"
)

func pricesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prices",
		Short: "Inspect Stripe price configuration",
	}
	cmd.AddCommand(pricesCheckCmd())
	return cmd
}

func pricesCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify every paid product has usable prices for the configured mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			products, err := catalog.NewRepository(env.db.DB).ListProducts(cmd.Context())
			if err != nil {
				return err
			}

			mode := env.cfg.Payments.Mode
			issues, err := catalog.AuditPrices(
				cmd.Context(),
				products,
				mode,
				payment.NewClient(env.cfg.Payments),
			)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(issues) == 0 {
				fmt.Fprintf(out, "%d products checked in %s mode, no issues\n", len(products), mode)
				return nil
			}
			for _, issue := range issues {
				fmt.Fprintln(out, issue)
			}
			return fmt.Errorf("%d price issues in %s mode", len(issues), mode)
		},
	}
}
