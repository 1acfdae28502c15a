package reliability

import (
	"context"

	domainreliability "reliaudit/internal/domain/reliability"
	"reliaudit/internal/ports"
)

// ActivityBySource counts entries of model per source over the last days.
func (s *Service) ActivityBySource(ctx context.Context, model string, days int) (map[domainreliability.Source]int, error) {
	ctx, err := s.begin(ctx, "activity_by_source")
	if err != nil {
		return nil, err
	}
	if err := checkModel(model); err != nil {
		return nil, err
	}
	return s.logs.CountBySource(ctx, model, s.since(orDefault(days, DefaultAnalyticsDays)))
}

// ScoreTrends classifies every transition with a prior total over the last days.
func (s *Service) ScoreTrends(ctx context.Context, model string, days int) (domainreliability.ScoreTrends, error) {
	var trends domainreliability.ScoreTrends

	ctx, err := s.begin(ctx, "score_trends")
	if err != nil {
		return trends, err
	}
	if err := checkModel(model); err != nil {
		return trends, err
	}

	filter := ports.AuditLogFilter{
		Model:       model,
		Since:       s.since(orDefault(days, DefaultAnalyticsDays)),
		RequireFrom: true,
	}
	err = s.logs.Scan(ctx, filter, verifyBatchSize, func(entries []domainreliability.LogEntry) error {
		for _, entry := range entries {
			if delta, ok := entry.Delta(); ok {
				trends.Classify(delta)
			}
		}
		return nil
	})
	return trends, err
}
