package uow

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"reliaudit/internal/bootstrap/logging"
	"reliaudit/internal/errs"
	"reliaudit/internal/ports"
)

// UnitOfWork implements ports.UnitOfWork over one sqlite handle.
type UnitOfWork struct {
	db *gorm.DB
}

func NewUnitOfWork(db *gorm.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

// WithTx opens a transaction, or joins the one already in ctx so a field
// upsert and its audit entry stay in a single commit.
func (u *UnitOfWork) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if ports.InTx(ctx) {
		return fn(ctx)
	}

	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ports.WithTxContext(ctx, tx))
	})
	if err != nil {
		logging.Debug(ctx, "transaction rolled back",
			slog.String("component", "sqlite.uow"),
			slog.Any("err", errs.Loggable(err)),
		)
		return err
	}
	return nil
}
