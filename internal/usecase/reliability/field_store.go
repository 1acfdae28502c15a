package reliability

import (
	"context"
	"log/slog"
	"strings"

	"reliaudit/internal/bootstrap/logging"
	domainreliability "reliaudit/internal/domain/reliability"
	"reliaudit/internal/errs"
)

type UpsertFieldInput struct {
	Model      string  `json:"model" validate:"required,modelname"`
	ForeignKey string  `json:"foreign_key" validate:"required,uuid"`
	Field      string  `json:"field" validate:"required,fieldname"`
	Score      float64 `json:"score" validate:"gte=0,lte=1"`
	Weight     float64 `json:"weight" validate:"gte=0,lte=1"`
	MaxScore   float64 `json:"max_score" validate:"gte=0,lte=1"`
	Notes      *string `json:"notes" validate:"omitempty,max=255"`
}

// FieldStat is one field's aggregate, rounded for display.
type FieldStat struct {
	Count     int64   `json:"count"`
	AvgScore  float64 `json:"avg_score"`
	MinScore  float64 `json:"min_score"`
	MaxScore  float64 `json:"max_score"`
	AvgWeight float64 `json:"avg_weight"`
}

// GetFields returns the current scores of one entity keyed by field name.
func (s *Service) GetFields(ctx context.Context, model string, foreignKey string) (map[string]domainreliability.FieldScore, error) {
	byEntity, err := s.GetFieldsForMany(ctx, model, []string{foreignKey})
	if err != nil {
		return nil, err
	}
	if fields, ok := byEntity[foreignKey]; ok {
		return fields, nil
	}
	return map[string]domainreliability.FieldScore{}, nil
}

// GetFieldsForMany batches GetFields. No query is issued for an empty id list.
func (s *Service) GetFieldsForMany(ctx context.Context, model string, foreignKeys []string) (map[string]map[string]domainreliability.FieldScore, error) {
	if err := checkModel(model); err != nil {
		return nil, err
	}
	out := map[string]map[string]domainreliability.FieldScore{}
	if len(foreignKeys) == 0 {
		return out, nil
	}
	ctx, err := s.begin(ctx, "get_fields")
	if err != nil {
		return nil, err
	}

	rows, err := s.fields.ListFields(ctx, model, uniqueTrimmed(foreignKeys))
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if out[row.ForeignKey] == nil {
			out[row.ForeignKey] = map[string]domainreliability.FieldScore{}
		}
		out[row.ForeignKey][row.Field] = row
	}
	return out, nil
}

// UpsertField validates and overwrites the current score of one field.
func (s *Service) UpsertField(ctx context.Context, input UpsertFieldInput) (domainreliability.FieldScore, error) {
	ctx, err := s.begin(ctx, "upsert_field")
	if err != nil {
		return domainreliability.FieldScore{}, err
	}
	if err := domainreliability.Validate(input); err != nil {
		return domainreliability.FieldScore{}, err
	}

	now := s.clock()
	score := domainreliability.FieldScore{
		Model:      input.Model,
		ForeignKey: input.ForeignKey,
		Field:      input.Field,
		Score:      domainreliability.RoundScore(input.Score, 2),
		Weight:     domainreliability.RoundScore(input.Weight, 3),
		MaxScore:   domainreliability.RoundScore(input.MaxScore, 2),
		Notes:      input.Notes,
		Created:    now,
		Modified:   now,
	}
	if err := s.fields.UpsertField(ctx, score); err != nil {
		return domainreliability.FieldScore{}, err
	}

	logging.Info(ctx, "field score upserted",
		slog.String("model", score.Model),
		slog.String("foreign_key", score.ForeignKey),
		slog.String("field", score.Field),
		slog.Float64("score", score.Score),
	)
	return score, nil
}

// Stats aggregates all rows of model, optionally narrowed to one field.
func (s *Service) Stats(ctx context.Context, model string, field string) (map[string]FieldStat, error) {
	ctx, err := s.begin(ctx, "field_stats")
	if err != nil {
		return nil, err
	}
	if err := checkModel(model); err != nil {
		return nil, err
	}
	if field != "" && !domainreliability.IsFieldName(field) {
		return nil, errs.Invalid("field", "must be a snake_case field name")
	}

	rows, err := s.fields.FieldStats(ctx, model, field)
	if err != nil {
		return nil, err
	}
	out := make(map[string]FieldStat, len(rows))
	for _, row := range rows {
		out[row.Field] = FieldStat{
			Count:     row.Count,
			AvgScore:  domainreliability.RoundScore(row.AvgScore, 3),
			MinScore:  domainreliability.RoundScore(row.MinScore, 2),
			MaxScore:  domainreliability.RoundScore(row.MaxScore, 2),
			AvgWeight: domainreliability.RoundScore(row.AvgWeight, 3),
		}
	}
	return out, nil
}

// FindLowScoring lists rows of one field scoring at most maxScore, lowest first.
// A negative maxScore selects DefaultLowScoreThreshold.
func (s *Service) FindLowScoring(ctx context.Context, model string, field string, maxScore float64) ([]domainreliability.FieldScore, error) {
	ctx, err := s.begin(ctx, "find_low_scoring")
	if err != nil {
		return nil, err
	}
	if err := checkModelField(model, field); err != nil {
		return nil, err
	}
	if maxScore < 0 {
		maxScore = DefaultLowScoreThreshold
	}
	return s.fields.ListLowScoring(ctx, model, field, maxScore)
}

// FindMissing lists rows of one field with a score of exactly zero, least recently modified first.
func (s *Service) FindMissing(ctx context.Context, model string, field string) ([]domainreliability.FieldScore, error) {
	ctx, err := s.begin(ctx, "find_missing")
	if err != nil {
		return nil, err
	}
	if err := checkModelField(model, field); err != nil {
		return nil, err
	}
	return s.fields.ListMissing(ctx, model, field)
}

// TopPerformingFields ranks fields by average score, highest first.
func (s *Service) TopPerformingFields(ctx context.Context, model string, limit int) ([]domainreliability.FieldAverage, error) {
	ctx, err := s.begin(ctx, "top_fields")
	if err != nil {
		return nil, err
	}
	if err := checkModel(model); err != nil {
		return nil, err
	}
	rows, err := s.fields.AverageScoreByField(ctx, model, orDefault(limit, DefaultTopFieldsLimit))
	if err != nil {
		return nil, err
	}
	return roundAverages(rows), nil
}

// FieldWeights ranks fields by average weight, highest first.
func (s *Service) FieldWeights(ctx context.Context, model string) ([]domainreliability.FieldAverage, error) {
	ctx, err := s.begin(ctx, "field_weights")
	if err != nil {
		return nil, err
	}
	if err := checkModel(model); err != nil {
		return nil, err
	}
	rows, err := s.fields.AverageWeightByField(ctx, model)
	if err != nil {
		return nil, err
	}
	return roundAverages(rows), nil
}

func roundAverages(rows []domainreliability.FieldAverage) []domainreliability.FieldAverage {
	for i := range rows {
		rows[i].Value = domainreliability.RoundScore(rows[i].Value, 3)
	}
	return rows
}

func checkModelField(model string, field string) error {
	if err := checkModel(model); err != nil {
		return err
	}
	if !domainreliability.IsFieldName(field) {
		return errs.Invalid("field", "must be a snake_case field name")
	}
	return nil
}

func uniqueTrimmed(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
