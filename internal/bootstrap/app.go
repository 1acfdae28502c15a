package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"reliaudit/internal/bootstrap/config"
	"reliaudit/internal/bootstrap/logging"
	"reliaudit/internal/errs"
	"reliaudit/internal/infrastructure/persistence/schema"
	"reliaudit/internal/infrastructure/persistence/sqlite/model"
)

type App struct {
	Config config.Config
	DB     *gorm.DB
}

// schemaModels are migrated by InitSchema, in dependency order.
var schemaModels = []any{
	&model.ReliabilityField{},
	&model.ReliabilityLog{},
	&model.KVEntry{},
}

// EnsureSchema runs InitSchema only when a table is missing, so commands work
// on a fresh database without an explicit init-db.
func (a *App) EnsureSchema(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	migrator := a.DB.WithContext(ctx).Migrator()
	for _, m := range schemaModels {
		if !migrator.HasTable(m) {
			logging.Info(logging.WithAttrs(ctx, slog.String("component", "bootstrap.app")), "schema missing, migrating")
			return a.InitSchema(ctx)
		}
	}
	return nil
}

func (a *App) InitSchema(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))
	logging.Info(logCtx, "start schema migration")

	if err := a.DB.WithContext(ctx).AutoMigrate(schemaModels...); err != nil {
		return errs.Wrap(err, "auto migrate schema")
	}

	immutable := a.Config.Reliability.ImmutableTriggers
	if err := schema.MakeImmutable(ctx, a.DB, model.ReliabilityLog{}.TableName(), immutable); err != nil {
		return errs.Wrap(err, "apply audit log triggers")
	}
	logging.Info(logCtx, "audit log triggers applied", slog.Bool("immutable", immutable))

	logging.Info(logCtx, "schema migration completed")
	return nil
}

func (a *App) Close(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	sqlDB, err := a.DB.DB()
	if err != nil {
		return errs.Wrap(err, "get sql db")
	}

	if err := sqlDB.Close(); err != nil {
		return errs.Wrap(err, "close sql db")
	}

	logging.Info(logging.WithAttrs(ctx, slog.String("component", "bootstrap.app")), "database connection closed")
	return nil
}
