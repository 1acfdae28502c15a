package reliability

import (
	"context"
	"errors"
	"log/slog"

	"reliaudit/internal/bootstrap/logging"
	domainreliability "reliaudit/internal/domain/reliability"
	"reliaudit/internal/errs"
	"reliaudit/internal/ports"
)

// VerifyChecksums recomputes every matching entry's checksum from stored values.
// Mismatches are reported, never corrected.
func (s *Service) VerifyChecksums(ctx context.Context, model string, foreignKey string) (domainreliability.VerificationResult, error) {
	result := domainreliability.VerificationResult{Failures: []domainreliability.ChecksumFailure{}}

	ctx, err := s.begin(ctx, "verify_checksums")
	if err != nil {
		return result, err
	}
	if err := checkModel(model); err != nil {
		return result, err
	}

	err = s.logs.Scan(ctx, ports.AuditLogFilter{Model: model, ForeignKey: foreignKey}, verifyBatchSize, func(entries []domainreliability.LogEntry) error {
		for _, entry := range entries {
			failure, ok := checkEntry(entry)
			if ok {
				result.Verified++
				continue
			}
			result.Failed++
			result.Failures = append(result.Failures, failure)
			logging.Warn(ctx, "audit log checksum mismatch",
				slog.String("log_id", entry.ID),
				slog.String("expected", failure.ExpectedChecksum),
				slog.String("computed", failure.ComputedChecksum),
			)
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	logging.Info(ctx, "audit log verified",
		slog.String("model", model),
		slog.Int("verified", result.Verified),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

// VerifyEntry checks a single entry by id.
func (s *Service) VerifyEntry(ctx context.Context, id string) (domainreliability.LogEntry, *domainreliability.ChecksumFailure, error) {
	ctx, err := s.begin(ctx, "verify_entry")
	if err != nil {
		return domainreliability.LogEntry{}, nil, err
	}
	entry, err := s.logs.Get(ctx, id)
	if err != nil {
		return domainreliability.LogEntry{}, nil, err
	}
	if failure, ok := checkEntry(entry); !ok {
		return entry, &failure, nil
	}
	return entry, nil, nil
}

func checkEntry(entry domainreliability.LogEntry) (domainreliability.ChecksumFailure, bool) {
	failure := domainreliability.ChecksumFailure{
		LogID:            entry.ID,
		ExpectedChecksum: entry.Checksum,
		Created:          entry.Created,
	}

	computed, err := entry.ComputeChecksum()
	if err != nil {
		reason := err.Error()
		if errors.Is(err, errs.ErrEncoding) {
			reason = "stored payload cannot be canonicalized: " + reason
		}
		failure.Reason = reason
		return failure, false
	}
	failure.ComputedChecksum = computed
	if entry.Created.IsZero() {
		failure.Reason = "stored created timestamp is unreadable"
		return failure, false
	}
	if computed != entry.Checksum {
		failure.Reason = "checksum mismatch"
		return failure, false
	}
	// The checksum covers scores at two decimals; anything finer was written
	// outside Append and would still change what the queries return.
	if !exactScore(entry.ToTotalScore) || (entry.FromTotalScore != nil && !exactScore(*entry.FromTotalScore)) {
		failure.Reason = "score precision altered"
		return failure, false
	}
	return failure, true
}

func exactScore(value float64) bool {
	return domainreliability.RoundScore(value, 2) == value
}
