// AngelaMos | 2026
// catalog.go

package main

import (
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/fertilityflow/portal/internal/catalog"
	"github.com/fertilityflow/portal/internal/core"
)

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage programs and their content",
	}
	cmd.AddCommand(catalogSeedCmd())
	return cmd
}

func catalogSeedCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Upsert products, videos, workbooks and printables from YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read seed: %w", err)
			}

			seed, err := catalog.ParseSeed(data)
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d products\n", args[0], len(seed.Products))
				return nil
			}

			env, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			var res catalog.SeedResult
			err = core.InTx(cmd.Context(), env.db.DB, func(tx *sqlx.Tx) error {
				var seedErr error
				res, seedErr = catalog.Seed(cmd.Context(), catalog.NewRepository(tx), seed)
				return seedErr
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"seeded %d products, %d videos, %d workbooks, %d workbook videos, %d printables\n",
				res.Products, res.Videos, res.Workbooks, res.WorkbookVideos, res.Printables)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without touching the database")

	return cmd
}
