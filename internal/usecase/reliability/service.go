// Package reliability implements the field score store and the append-only,
// checksum-verified audit log of score transitions.
package reliability

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"reliaudit/internal/bootstrap/logging"
	domainreliability "reliaudit/internal/domain/reliability"
	"reliaudit/internal/errs"
	"reliaudit/internal/ports"
)

const (
	DefaultLowScoreThreshold = 0.50
	DefaultTopFieldsLimit    = 10
	DefaultRecentLimit       = 50
	DefaultRecentDays        = 7
	DefaultQueryLimit        = 100
	DefaultMinDelta          = 0.25
	DefaultSignificantLimit  = 50
	DefaultAnalyticsDays     = 30
	DefaultActorService      = "reliability-service"

	verifyBatchSize = 500
)

type Options struct {
	// DefaultActorService is attributed to RecordScore entries that name no service.
	DefaultActorService string
}

type Service struct {
	fields ports.ReliabilityFieldRepository
	logs   ports.AuditLogRepository
	uow    ports.UnitOfWork
	opts   Options
	now    func() time.Time
	newID  func() string
}

func NewService(fields ports.ReliabilityFieldRepository, logs ports.AuditLogRepository, uow ports.UnitOfWork, opts Options) *Service {
	if opts.DefaultActorService == "" {
		opts.DefaultActorService = DefaultActorService
	}
	return &Service{
		fields: fields,
		logs:   logs,
		uow:    uow,
		opts:   opts,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

func (s *Service) begin(ctx context.Context, op string) (context.Context, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}
	if s.fields == nil || s.logs == nil {
		return nil, errors.New("reliability repositories are required")
	}
	return logging.WithAttrs(ctx,
		slog.String("component", "usecase.reliability"),
		slog.String("op", op),
	), nil
}

func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

func (s *Service) since(days int) time.Time {
	return s.clock().AddDate(0, 0, -days)
}

func orDefault(value int, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func checkModel(model string) error {
	if !domainreliability.IsModelName(model) {
		return errs.Invalid("model", "must be alphanumeric, start with a letter and be at most 20 characters")
	}
	return nil
}
