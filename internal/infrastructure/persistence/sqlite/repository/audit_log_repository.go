package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"reliaudit/internal/domain/checksum"
	"reliaudit/internal/domain/reliability"
	"reliaudit/internal/errs"
	"reliaudit/internal/infrastructure/persistence/sqlite/model"
	"reliaudit/internal/ports"
)

// Absorbs binary float error in |to-from| comparisons of two-decimal scores.
const deltaEpsilon = 1e-9

type AuditLogRepository struct {
	db *gorm.DB
}

var _ ports.AuditLogRepository = (*AuditLogRepository)(nil)

func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

func (r *AuditLogRepository) Insert(ctx context.Context, entry reliability.LogEntry) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	row := model.ReliabilityLog{
		ID:                  entry.ID,
		Model:               entry.Model,
		ForeignKey:          entry.ForeignKey,
		FromTotalScore:      entry.FromTotalScore,
		ToTotalScore:        entry.ToTotalScore,
		FromFieldScoresJSON: entry.FromFieldScoresJSON,
		ToFieldScoresJSON:   entry.ToFieldScoresJSON,
		Source:              string(entry.Source),
		ActorUserID:         entry.ActorUserID,
		ActorService:        entry.ActorService,
		Message:             entry.Message,
		ChecksumSHA256:      entry.Checksum,
		CreatedAt:           checksum.FormatTime(entry.Created),
	}
	if err := db.Create(&row).Error; err != nil {
		return errs.Wrapf(err, "insert audit log entry %s", entry.ID)
	}
	return nil
}

func (r *AuditLogRepository) Get(ctx context.Context, id string) (reliability.LogEntry, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return reliability.LogEntry{}, err
	}

	var row model.ReliabilityLog
	if err := db.Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return reliability.LogEntry{}, errs.Wrapf(ports.ErrLogEntryNotFound, "id=%s", id)
		}
		return reliability.LogEntry{}, errs.Wrap(err, "query audit log entry")
	}
	return mapLogRow(row)
}

func (r *AuditLogRepository) Latest(ctx context.Context, modelName string, foreignKey string) (reliability.LogEntry, bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return reliability.LogEntry{}, false, err
	}

	var row model.ReliabilityLog
	if err := db.
		Where("model = ? AND foreign_key = ?", modelName, foreignKey).
		Order("created_at desc").
		Order("rowid desc").
		Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return reliability.LogEntry{}, false, nil
		}
		return reliability.LogEntry{}, false, errs.Wrap(err, "query latest audit log entry")
	}
	entry, err := mapLogRow(row)
	if err != nil {
		return reliability.LogEntry{}, false, err
	}
	return entry, true, nil
}

func (r *AuditLogRepository) List(ctx context.Context, filter ports.AuditLogFilter) ([]reliability.LogEntry, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	query := applyLogFilter(db.Model(&model.ReliabilityLog{}), filter)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []model.ReliabilityLog
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query audit log")
	}
	return mapLogRows(rows)
}

func (r *AuditLogRepository) Scan(ctx context.Context, filter ports.AuditLogFilter, batchSize int, fn func([]reliability.LogEntry) error) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	filter.OldestFirst = true

	for offset := 0; ; offset += batchSize {
		if err := ctx.Err(); err != nil {
			return errs.Wrap(err, "scan audit log")
		}

		var rows []model.ReliabilityLog
		if err := applyLogFilter(db.Model(&model.ReliabilityLog{}), filter).
			Offset(offset).
			Limit(batchSize).
			Find(&rows).Error; err != nil {
			return errs.Wrap(err, "scan audit log")
		}
		if len(rows) == 0 {
			return nil
		}

		// An unparsable created_at maps to the zero time so the entry fails
		// verification instead of aborting the scan.
		entries := make([]reliability.LogEntry, 0, len(rows))
		for _, row := range rows {
			entry, err := mapLogRow(row)
			if err != nil {
				entry.Created = time.Time{}
			}
			entries = append(entries, entry)
		}
		if err := fn(entries); err != nil {
			return err
		}
		if len(rows) < batchSize {
			return nil
		}
	}
}

type sourceCountRow struct {
	Source string
	Count  int
}

func (r *AuditLogRepository) CountBySource(ctx context.Context, modelName string, since time.Time) (map[reliability.Source]int, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []sourceCountRow
	if err := db.Model(&model.ReliabilityLog{}).
		Select("source, COUNT(*) AS count").
		Where("model = ? AND created_at >= ?", modelName, checksum.FormatTime(since)).
		Group("source").
		Scan(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "count audit log by source")
	}

	out := make(map[reliability.Source]int, len(rows))
	for _, row := range rows {
		out[reliability.Source(row.Source)] = row.Count
	}
	return out, nil
}

func applyLogFilter(query *gorm.DB, filter ports.AuditLogFilter) *gorm.DB {
	if filter.Model != "" {
		query = query.Where("model = ?", filter.Model)
	}
	if filter.ForeignKey != "" {
		query = query.Where("foreign_key = ?", filter.ForeignKey)
	}
	if filter.Source != "" {
		query = query.Where("source = ?", string(filter.Source))
	}
	if filter.ActorUserID != "" {
		query = query.Where("actor_user_id = ?", filter.ActorUserID)
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", checksum.FormatTime(filter.Since))
	}
	if filter.RequireFrom || filter.MinDelta > 0 {
		query = query.Where("from_total_score IS NOT NULL")
	}
	if filter.MinDelta > 0 {
		query = query.Where("ABS(to_total_score - from_total_score) >= ?", filter.MinDelta-deltaEpsilon)
	}

	if filter.OldestFirst {
		return query.Order("created_at asc").Order("rowid asc")
	}
	return query.Order("created_at desc").Order("rowid desc")
}

func mapLogRows(rows []model.ReliabilityLog) ([]reliability.LogEntry, error) {
	out := make([]reliability.LogEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLogRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func mapLogRow(row model.ReliabilityLog) (reliability.LogEntry, error) {
	entry := reliability.LogEntry{
		ID:                  row.ID,
		Model:               row.Model,
		ForeignKey:          row.ForeignKey,
		FromTotalScore:      row.FromTotalScore,
		ToTotalScore:        row.ToTotalScore,
		FromFieldScoresJSON: row.FromFieldScoresJSON,
		ToFieldScoresJSON:   row.ToFieldScoresJSON,
		Source:              reliability.Source(row.Source),
		ActorUserID:         row.ActorUserID,
		ActorService:        row.ActorService,
		Message:             row.Message,
		Checksum:            row.ChecksumSHA256,
	}
	created, err := time.Parse(checksum.TimeLayout, row.CreatedAt)
	if err != nil {
		return entry, errs.Wrapf(err, "parse created_at of audit log entry %s", row.ID)
	}
	entry.Created = created
	return entry, nil
}
