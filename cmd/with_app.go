package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"reliaudit/internal/bootstrap"
	"reliaudit/internal/bootstrap/logging"
	"reliaudit/internal/errs"
	"reliaudit/internal/usecase/linelog"
	"reliaudit/internal/usecase/logchecksum"
	"reliaudit/internal/usecase/reliability"
)

// appDeps is everything a command may need from the fx graph.
type appDeps struct {
	App          *bootstrap.App
	Reliability  *reliability.Service
	Checksums    *logchecksum.Manager
	Monitor      *logchecksum.Monitor
	BulkVerifier *linelog.Verifier
	BulkWriter   *linelog.Writer
}

// skipEnsureSchema marks commands that manage the schema themselves.
const skipEnsureSchema = "reliaudit/skip-ensure-schema"

type runFunc func(cmd *cobra.Command, deps *appDeps) error

// bindRun runs with the given deps when set, otherwise boots the fx application.
func bindRun(deps *appDeps, run runFunc) func(cmd *cobra.Command, args []string) error {
	if deps != nil {
		return func(cmd *cobra.Command, _ []string) error {
			return run(cmd, deps)
		}
	}
	return withApp(run)
}

func withApp(run runFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := logging.WithAttrs(
			cmd.Context(),
			slog.String("command", cmd.CommandPath()),
			slog.String("config_file", cfgFile),
		)

		deps := &appDeps{}
		fxApp := fx.New(
			bootstrap.Module,
			fx.NopLogger,
			fx.Provide(func() context.Context { return ctx }),
			fx.Provide(
				fx.Annotate(
					func() string { return cfgFile },
					fx.ResultTags(`name:"configFile"`),
				),
			),
			fx.Populate(
				&deps.App,
				&deps.Reliability,
				&deps.Checksums,
				&deps.Monitor,
				&deps.BulkVerifier,
				&deps.BulkWriter,
			),
		)

		startCtx, cancelStart := context.WithTimeout(ctx, 10*time.Second)
		defer cancelStart()
		if err := fxApp.Start(startCtx); err != nil {
			logging.Error(ctx, "bootstrap application failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "start fx application")
		}

		defer func() {
			stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelStop()
			if err := fxApp.Stop(stopCtx); err != nil {
				logging.Error(ctx, "fx application stop failed", slog.Any("err", errs.Loggable(err)))
			}
		}()

		logCfg := deps.App.Config.Log
		if err := logging.Configure(cmd.ErrOrStderr(), pick(logLevel, logCfg.Level), pick(logFormat, logCfg.Format)); err != nil {
			return errs.Wrap(err, "configure logging")
		}

		if cmd.Annotations[skipEnsureSchema] == "" {
			if err := deps.App.EnsureSchema(ctx); err != nil {
				return errs.Wrap(err, "ensure schema")
			}
		}

		if err := run(cmd, deps); err != nil {
			return errs.Wrap(err, "run command")
		}
		return nil
	}
}
