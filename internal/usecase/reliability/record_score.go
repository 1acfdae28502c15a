package reliability

import (
	"context"
	"errors"
	"log/slog"

	"reliaudit/internal/bootstrap/logging"
	domainreliability "reliaudit/internal/domain/reliability"
)

type FieldScoreInput struct {
	Field    string   `json:"field" validate:"required,fieldname"`
	Score    float64  `json:"score" validate:"gte=0,lte=1"`
	Weight   float64  `json:"weight" validate:"gte=0,lte=1"`
	MaxScore *float64 `json:"max_score" validate:"omitempty,gte=0,lte=1"`
	Notes    *string  `json:"notes" validate:"omitempty,max=255"`
}

type RecordScoreInput struct {
	Model        string                   `json:"model" validate:"required,modelname"`
	ForeignKey   string                   `json:"foreign_key" validate:"required,uuid"`
	Fields       []FieldScoreInput        `json:"fields" validate:"required,min=1,unique=Field,dive"`
	Source       domainreliability.Source `json:"source" validate:"required,source"`
	ActorUserID  *string                  `json:"actor_user_id" validate:"omitempty,uuid"`
	ActorService *string                  `json:"actor_service" validate:"omitempty,max=100"`
	Message      *string                  `json:"message"`
}

type RecordScoreResult struct {
	Entry  domainreliability.LogEntry
	Fields []domainreliability.FieldScore
}

// RecordScore upserts a full set of field scores and appends the resulting
// transition in one unit of work. The prior state is the entity's latest entry.
func (s *Service) RecordScore(ctx context.Context, input RecordScoreInput) (RecordScoreResult, error) {
	ctx, err := s.begin(ctx, "record_score")
	if err != nil {
		return RecordScoreResult{}, err
	}
	if s.uow == nil {
		return RecordScoreResult{}, errors.New("reliability unit of work is required")
	}
	if err := domainreliability.Validate(input); err != nil {
		return RecordScoreResult{}, err
	}

	actorService := input.ActorService
	if actorService == nil || *actorService == "" {
		actorService = &s.opts.DefaultActorService
	}

	var result RecordScoreResult
	err = s.uow.WithTx(ctx, func(txCtx context.Context) error {
		prior, found, err := s.logs.Latest(txCtx, input.Model, input.ForeignKey)
		if err != nil {
			return err
		}

		now := s.clock()
		total, snapshot := weightedTotal(input.Fields)
		result.Fields = make([]domainreliability.FieldScore, 0, len(input.Fields))
		for _, field := range input.Fields {
			score := domainreliability.FieldScore{
				Model:      input.Model,
				ForeignKey: input.ForeignKey,
				Field:      field.Field,
				Score:      domainreliability.RoundScore(field.Score, 2),
				Weight:     domainreliability.RoundScore(field.Weight, 3),
				MaxScore:   1,
				Notes:      field.Notes,
				Created:    now,
				Modified:   now,
			}
			if field.MaxScore != nil {
				score.MaxScore = domainreliability.RoundScore(*field.MaxScore, 2)
			}
			if err := s.fields.UpsertField(txCtx, score); err != nil {
				return err
			}
			result.Fields = append(result.Fields, score)
		}

		appendInput := AppendInput{
			Model:         input.Model,
			ForeignKey:    input.ForeignKey,
			Source:        input.Source,
			ToTotalScore:  total,
			ToFieldScores: snapshot,
			ActorUserID:   input.ActorUserID,
			ActorService:  actorService,
			Message:       input.Message,
		}
		if found {
			from := prior.ToTotalScore
			appendInput.FromTotalScore = &from
			fromFields, err := domainreliability.DecodeFieldScores(prior.ToFieldScoresJSON)
			if err != nil {
				return err
			}
			appendInput.FromFieldScores = fromFields
		}

		entry, err := s.buildEntry(appendInput)
		if err != nil {
			return err
		}
		if err := s.logs.Insert(txCtx, entry); err != nil {
			return err
		}
		result.Entry = entry
		return nil
	})
	if err != nil {
		return RecordScoreResult{}, err
	}

	logging.Info(ctx, "score recorded",
		slog.String("log_id", result.Entry.ID),
		slog.String("model", input.Model),
		slog.String("foreign_key", input.ForeignKey),
		slog.Int("fields", len(result.Fields)),
		slog.String("to_total_score", domainreliability.FormatScore(result.Entry.ToTotalScore)),
	)
	return result, nil
}

// weightedTotal is sum(score*weight)/sum(weight), 0 when no field carries weight.
func weightedTotal(fields []FieldScoreInput) (float64, map[string]any) {
	var weighted, weights float64
	snapshot := make(map[string]any, len(fields))
	for _, field := range fields {
		score := domainreliability.RoundScore(field.Score, 2)
		weight := domainreliability.RoundScore(field.Weight, 3)
		contribution := score * weight
		weighted += contribution
		weights += weight

		maxScore := 1.0
		if field.MaxScore != nil {
			maxScore = domainreliability.RoundScore(*field.MaxScore, 2)
		}
		entry := map[string]any{
			"score":        score,
			"weight":       weight,
			"contribution": domainreliability.RoundScore(contribution, 3),
			"max_score":    maxScore,
		}
		if field.Notes != nil && *field.Notes != "" {
			entry["notes"] = *field.Notes
		}
		snapshot[field.Field] = entry
	}
	if weights == 0 {
		return 0, snapshot
	}
	return domainreliability.RoundScore(weighted/weights, 2), snapshot
}
