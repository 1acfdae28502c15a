package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"reliaudit/internal/domain/reliability"
	"reliaudit/internal/errs"
	"reliaudit/internal/infrastructure/persistence/sqlite/model"
	"reliaudit/internal/ports"
)

type ReliabilityFieldRepository struct {
	db *gorm.DB
}

var _ ports.ReliabilityFieldRepository = (*ReliabilityFieldRepository)(nil)

func NewReliabilityFieldRepository(db *gorm.DB) *ReliabilityFieldRepository {
	return &ReliabilityFieldRepository{db: db}
}

func (r *ReliabilityFieldRepository) ListFields(ctx context.Context, modelName string, foreignKeys []string) ([]reliability.FieldScore, error) {
	if len(foreignKeys) == 0 {
		return nil, nil
	}
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.ReliabilityField
	if err := db.
		Where("model = ? AND foreign_key IN ?", modelName, foreignKeys).
		Order("foreign_key asc").
		Order("field asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query reliability fields")
	}
	return mapFieldRows(rows)
}

func (r *ReliabilityFieldRepository) UpsertField(ctx context.Context, score reliability.FieldScore) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	row := model.ReliabilityField{
		Model:      score.Model,
		ForeignKey: score.ForeignKey,
		Field:      score.Field,
		Score:      score.Score,
		Weight:     score.Weight,
		MaxScore:   score.MaxScore,
		Notes:      score.Notes,
		CreatedAt:  score.Created.UTC().Format(timeLayout),
		ModifiedAt: score.Modified.UTC().Format(timeLayout),
	}

	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "model"}, {Name: "foreign_key"}, {Name: "field"}},
		DoUpdates: clause.Assignments(map[string]any{
			"score":       row.Score,
			"weight":      row.Weight,
			"max_score":   row.MaxScore,
			"notes":       row.Notes,
			"modified_at": row.ModifiedAt,
		}),
	}).Create(&row).Error; err != nil {
		return errs.Wrapf(err, "upsert reliability field %s.%s", score.Model, score.Field)
	}
	return nil
}

type fieldStatsRow struct {
	Field     string
	Count     int64
	AvgScore  float64
	MinScore  float64
	MaxScore  float64
	AvgWeight float64
}

func (r *ReliabilityFieldRepository) FieldStats(ctx context.Context, modelName string, field string) ([]reliability.FieldStats, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.ReliabilityField{}).
		Select("field, COUNT(*) AS count, AVG(score) AS avg_score, MIN(score) AS min_score, MAX(score) AS max_score, AVG(weight) AS avg_weight").
		Where("model = ?", modelName).
		Group("field").
		Order("field asc")
	if field != "" {
		query = query.Where("field = ?", field)
	}

	var rows []fieldStatsRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query field stats")
	}

	out := make([]reliability.FieldStats, 0, len(rows))
	for _, row := range rows {
		out = append(out, reliability.FieldStats(row))
	}
	return out, nil
}

func (r *ReliabilityFieldRepository) ListLowScoring(ctx context.Context, modelName string, field string, maxScore float64) ([]reliability.FieldScore, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.ReliabilityField
	if err := db.
		Where("model = ? AND field = ? AND score <= ?", modelName, field, maxScore).
		Order("score asc").
		Order("foreign_key asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query low scoring fields")
	}
	return mapFieldRows(rows)
}

func (r *ReliabilityFieldRepository) ListMissing(ctx context.Context, modelName string, field string) ([]reliability.FieldScore, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.ReliabilityField
	if err := db.
		Where("model = ? AND field = ? AND score = 0", modelName, field).
		Order("modified_at asc").
		Order("foreign_key asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query missing fields")
	}
	return mapFieldRows(rows)
}

type fieldAverageRow struct {
	Field string
	Value float64
}

func (r *ReliabilityFieldRepository) AverageScoreByField(ctx context.Context, modelName string, limit int) ([]reliability.FieldAverage, error) {
	return r.averageByField(ctx, modelName, "score", limit)
}

func (r *ReliabilityFieldRepository) AverageWeightByField(ctx context.Context, modelName string) ([]reliability.FieldAverage, error) {
	return r.averageByField(ctx, modelName, "weight", 0)
}

func (r *ReliabilityFieldRepository) averageByField(ctx context.Context, modelName string, column string, limit int) ([]reliability.FieldAverage, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.ReliabilityField{}).
		Select("field, AVG("+column+") AS value").
		Where("model = ?", modelName).
		Group("field").
		Order("value desc").
		Order("field asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []fieldAverageRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, errs.Wrapf(err, "query average %s by field", column)
	}

	out := make([]reliability.FieldAverage, 0, len(rows))
	for _, row := range rows {
		out = append(out, reliability.FieldAverage(row))
	}
	return out, nil
}

func mapFieldRows(rows []model.ReliabilityField) ([]reliability.FieldScore, error) {
	out := make([]reliability.FieldScore, 0, len(rows))
	for _, row := range rows {
		created, err := time.Parse(timeLayout, row.CreatedAt)
		if err != nil {
			return nil, errs.Wrapf(err, "parse created_at of %s.%s", row.Model, row.Field)
		}
		modified, err := time.Parse(timeLayout, row.ModifiedAt)
		if err != nil {
			return nil, errs.Wrapf(err, "parse modified_at of %s.%s", row.Model, row.Field)
		}
		out = append(out, reliability.FieldScore{
			Model:      row.Model,
			ForeignKey: row.ForeignKey,
			Field:      row.Field,
			Score:      row.Score,
			Weight:     row.Weight,
			MaxScore:   row.MaxScore,
			Notes:      row.Notes,
			Created:    created,
			Modified:   modified,
		})
	}
	return out, nil
}
