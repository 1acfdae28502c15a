/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"reliaudit/internal/bootstrap/logging"
	"reliaudit/internal/errs"
)

func newInitDbCmd(deps *appDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Initialize database schema",
		RunE: bindRun(deps, func(cmd *cobra.Command, deps *appDeps) error {
			ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
			logging.Info(ctx, "start init-db")

			app := deps.App
			if err := app.InitSchema(ctx); err != nil {
				logging.Error(ctx, "initialize schema failed", slog.Any("err", errs.Loggable(err)))
				return errs.Wrap(err, "initialize schema")
			}

			logging.Info(ctx, "init-db finished", slog.String("database_dsn", app.Config.Database.DSN))
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "database schema initialized: %s\n", app.Config.Database.DSN); err != nil {
				return errs.Wrap(err, "write init-db output")
			}
			return nil
		}),
		Annotations: map[string]string{
			skipEnsureSchema: "true",
		},
	}
}

func init() {
	rootCmd.AddCommand(newInitDbCmd(nil))
}
