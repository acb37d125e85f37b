// AngelaMos | 2026
// env.go

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fertilityflow/portal/internal/config"
	"github.com/fertilityflow/portal/internal/core"
)

type cliEnv struct {
	cfg *config.Config
	db  *core.Database
}

func openEnv(cmd *cobra.Command) (*cliEnv, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	db, err := core.NewDatabase(cmd.Context(), cfg.Database)
	if err != nil {
		return nil, err
	}

	return &cliEnv{cfg: cfg, db: db}, nil
}

func (e *cliEnv) close() {
	if err := e.db.Close(); err != nil {
		slog.Warn("database close", "error", err)
	}
}
