package ports

import (
	"context"
	"errors"
	"time"

	"reliaudit/internal/domain/reliability"
)

var ErrLogEntryNotFound = errors.New("audit log entry not found")

// ReliabilityFieldRepository stores the current score of every (model, foreign key, field).
type ReliabilityFieldRepository interface {
	ListFields(ctx context.Context, model string, foreignKeys []string) ([]reliability.FieldScore, error)
	UpsertField(ctx context.Context, score reliability.FieldScore) error
	FieldStats(ctx context.Context, model string, field string) ([]reliability.FieldStats, error)
	ListLowScoring(ctx context.Context, model string, field string, maxScore float64) ([]reliability.FieldScore, error)
	ListMissing(ctx context.Context, model string, field string) ([]reliability.FieldScore, error)
	AverageScoreByField(ctx context.Context, model string, limit int) ([]reliability.FieldAverage, error)
	AverageWeightByField(ctx context.Context, model string) ([]reliability.FieldAverage, error)
}

// AuditLogFilter narrows audit log reads. Zero values mean "no constraint".
type AuditLogFilter struct {
	Model       string
	ForeignKey  string
	Source      reliability.Source
	ActorUserID string
	Since       time.Time
	// RequireFrom keeps only entries that carry a prior total.
	RequireFrom bool
	// MinDelta keeps entries with |to-from| >= MinDelta; implies RequireFrom.
	MinDelta    float64
	Limit       int
	OldestFirst bool
}

// AuditLogRepository is insert-only. Entries are never updated or deleted.
type AuditLogRepository interface {
	Insert(ctx context.Context, entry reliability.LogEntry) error
	Get(ctx context.Context, id string) (reliability.LogEntry, error)
	Latest(ctx context.Context, model string, foreignKey string) (reliability.LogEntry, bool, error)
	List(ctx context.Context, filter AuditLogFilter) ([]reliability.LogEntry, error)
	// Scan streams matching entries oldest first in batches of batchSize.
	Scan(ctx context.Context, filter AuditLogFilter, batchSize int, fn func([]reliability.LogEntry) error) error
	CountBySource(ctx context.Context, model string, since time.Time) (map[reliability.Source]int, error)
}
