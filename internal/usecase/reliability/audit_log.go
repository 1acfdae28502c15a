package reliability

import (
	"context"
	"log/slog"
	"strings"

	"reliaudit/internal/bootstrap/logging"
	domainreliability "reliaudit/internal/domain/reliability"
	"reliaudit/internal/errs"
	"reliaudit/internal/ports"
)

type AppendInput struct {
	Model           string                   `json:"model" validate:"required,modelname"`
	ForeignKey      string                   `json:"foreign_key" validate:"required,uuid"`
	Source          domainreliability.Source `json:"source" validate:"required,source"`
	FromTotalScore  *float64                 `json:"from_total_score" validate:"omitempty,gte=0,lte=1"`
	ToTotalScore    float64                  `json:"to_total_score" validate:"gte=0,lte=1"`
	FromFieldScores map[string]any           `json:"from_field_scores"`
	ToFieldScores   map[string]any           `json:"to_field_scores" validate:"required"`
	ActorUserID     *string                  `json:"actor_user_id" validate:"omitempty,uuid"`
	ActorService    *string                  `json:"actor_service" validate:"omitempty,max=100"`
	Message         *string                  `json:"message"`
}

// Append validates input and writes one immutable, checksummed entry.
// Nothing is persisted when validation or encoding fails.
func (s *Service) Append(ctx context.Context, input AppendInput) (domainreliability.LogEntry, error) {
	ctx, err := s.begin(ctx, "append")
	if err != nil {
		return domainreliability.LogEntry{}, err
	}
	entry, err := s.buildEntry(input)
	if err != nil {
		return domainreliability.LogEntry{}, err
	}
	if err := s.logs.Insert(ctx, entry); err != nil {
		return domainreliability.LogEntry{}, err
	}

	logging.Info(ctx, "audit log entry appended",
		slog.String("log_id", entry.ID),
		slog.String("model", entry.Model),
		slog.String("foreign_key", entry.ForeignKey),
		slog.String("source", string(entry.Source)),
		slog.String("to_total_score", domainreliability.FormatScore(entry.ToTotalScore)),
	)
	return entry, nil
}

func (s *Service) buildEntry(input AppendInput) (domainreliability.LogEntry, error) {
	if err := domainreliability.Validate(input); err != nil {
		return domainreliability.LogEntry{}, err
	}

	fromFields, err := domainreliability.EncodeFieldScores("from_field_scores", input.FromFieldScores)
	if err != nil {
		return domainreliability.LogEntry{}, err
	}
	toFields, err := domainreliability.EncodeFieldScores("to_field_scores", input.ToFieldScores)
	if err != nil {
		return domainreliability.LogEntry{}, err
	}

	entry := domainreliability.LogEntry{
		ID:                  s.newID(),
		Model:               input.Model,
		ForeignKey:          input.ForeignKey,
		ToTotalScore:        domainreliability.RoundScore(input.ToTotalScore, 2),
		FromFieldScoresJSON: fromFields,
		ToFieldScoresJSON:   *toFields,
		Source:              input.Source,
		ActorUserID:         nonEmpty(input.ActorUserID),
		ActorService:        nonEmpty(input.ActorService),
		Message:             nonEmpty(input.Message),
		Created:             s.clock(),
	}
	if input.FromTotalScore != nil {
		from := domainreliability.RoundScore(*input.FromTotalScore, 2)
		entry.FromTotalScore = &from
	}

	sum, err := entry.ComputeChecksum()
	if err != nil {
		return domainreliability.LogEntry{}, err
	}
	entry.Checksum = sum
	return entry, nil
}

// FindFor returns the full history of one entity, newest first.
func (s *Service) FindFor(ctx context.Context, model string, foreignKey string) ([]domainreliability.LogEntry, error) {
	ctx, err := s.begin(ctx, "find_for")
	if err != nil {
		return nil, err
	}
	if err := checkModel(model); err != nil {
		return nil, err
	}
	foreignKey = strings.TrimSpace(foreignKey)
	if foreignKey == "" {
		return nil, errs.Invalid("foreign_key", "is required")
	}
	return s.logs.List(ctx, ports.AuditLogFilter{Model: model, ForeignKey: foreignKey})
}

// FindRecent returns up to limit entries of model created within the last days.
func (s *Service) FindRecent(ctx context.Context, model string, limit int, days int) ([]domainreliability.LogEntry, error) {
	ctx, err := s.begin(ctx, "find_recent")
	if err != nil {
		return nil, err
	}
	if err := checkModel(model); err != nil {
		return nil, err
	}
	return s.logs.List(ctx, ports.AuditLogFilter{
		Model: model,
		Since: s.since(orDefault(days, DefaultRecentDays)),
		Limit: orDefault(limit, DefaultRecentLimit),
	})
}

// FindBySource returns entries produced by source, optionally within one model.
func (s *Service) FindBySource(ctx context.Context, source domainreliability.Source, model string, limit int) ([]domainreliability.LogEntry, error) {
	ctx, err := s.begin(ctx, "find_by_source")
	if err != nil {
		return nil, err
	}
	if !source.Valid() {
		return nil, errs.Invalid("source", "must be one of user, ai, admin, system")
	}
	if model != "" {
		if err := checkModel(model); err != nil {
			return nil, err
		}
	}
	return s.logs.List(ctx, ports.AuditLogFilter{
		Model:  model,
		Source: source,
		Limit:  orDefault(limit, DefaultQueryLimit),
	})
}

// FindByUser returns entries attributed to actor userID, optionally within one model.
func (s *Service) FindByUser(ctx context.Context, userID string, model string, limit int) ([]domainreliability.LogEntry, error) {
	ctx, err := s.begin(ctx, "find_by_user")
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, errs.Invalid("actor_user_id", "is required")
	}
	if model != "" {
		if err := checkModel(model); err != nil {
			return nil, err
		}
	}
	return s.logs.List(ctx, ports.AuditLogFilter{
		Model:       model,
		ActorUserID: userID,
		Limit:       orDefault(limit, DefaultQueryLimit),
	})
}

// FindSignificantChanges returns entries with a prior total whose |to-from| >= minDelta.
func (s *Service) FindSignificantChanges(ctx context.Context, model string, minDelta float64, limit int) ([]domainreliability.LogEntry, error) {
	ctx, err := s.begin(ctx, "find_significant")
	if err != nil {
		return nil, err
	}
	if err := checkModel(model); err != nil {
		return nil, err
	}
	if minDelta <= 0 {
		minDelta = DefaultMinDelta
	}
	return s.logs.List(ctx, ports.AuditLogFilter{
		Model:       model,
		RequireFrom: true,
		MinDelta:    minDelta,
		Limit:       orDefault(limit, DefaultSignificantLimit),
	})
}

func nonEmpty(value *string) *string {
	if value == nil || *value == "" {
		return nil
	}
	return value
}
