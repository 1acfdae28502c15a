package cmd

import (
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"reliaudit/internal/bootstrap/logging"
	"reliaudit/internal/errs"
	"reliaudit/internal/usecase/auditconsole"
)

func newConsoleCmd(deps *appDeps) *cobra.Command {
	consoleCmd := &cobra.Command{
		Use:   "console",
		Short: "Terminal console commands",
	}
	consoleCmd.AddCommand(newConsoleAuditCmd(deps))
	return consoleCmd
}

func newConsoleAuditCmd(deps *appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Browse and verify reliability audit entries",
		RunE: bindRun(deps, func(cmd *cobra.Command, deps *appDeps) error {
			ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

			refreshInterval, _ := cmd.Flags().GetDuration("refresh-interval")
			if refreshInterval <= 0 {
				refreshInterval = 10 * time.Second
			}
			limit, _ := cmd.Flags().GetInt("limit")
			days, _ := cmd.Flags().GetInt("days")

			model := auditconsole.NewAuditModel(ctx, deps.Reliability, auditconsole.Options{
				Model:           stringFlag(cmd, "model"),
				ForeignKey:      stringFlag(cmd, "id"),
				Limit:           limit,
				Days:            days,
				RefreshInterval: refreshInterval,
			})

			program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
			if _, err := program.Run(); err != nil {
				return errs.Wrap(err, "run audit console")
			}
			return nil
		}),
	}
	cmd.Flags().String("model", "", "Entity model to audit")
	cmd.Flags().String("id", "", "Optional entity id; shows that entity's full history")
	cmd.Flags().Int("limit", 50, "Recent entries to load when no id is given")
	cmd.Flags().Int("days", 30, "Look-back window in days when no id is given")
	cmd.Flags().Duration("refresh-interval", 10*time.Second, "Auto refresh interval")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func init() {
	rootCmd.AddCommand(newConsoleCmd(nil))
}
