package logchecksum

import (
	"context"
	"time"
)

type OverallStatus string

const (
	OverallOK       OverallStatus = "OK"
	OverallInfo     OverallStatus = "INFO"
	OverallWarning  OverallStatus = "WARNING"
	OverallCritical OverallStatus = "CRITICAL"
)

type ReportSummary struct {
	Verified         int `json:"verified"`
	Failed           int `json:"failed"`
	MissingChecksums int `json:"missing_checksums"`
	Corrupted        int `json:"corrupted"`
}

type Report struct {
	Timestamp     time.Time     `json:"timestamp"`
	TotalLogs     int           `json:"total_logs"`
	OverallStatus OverallStatus `json:"overall_status"`
	Summary       ReportSummary `json:"summary"`
	Details       VerifyResult  `json:"details"`
}

// StatusOf ranks a verification: any corruption is critical, then failures,
// then files without a reference.
func StatusOf(result VerifyResult) OverallStatus {
	switch {
	case len(result.Corrupted) > 0:
		return OverallCritical
	case len(result.Failed) > 0:
		return OverallWarning
	case len(result.Missing) > 0:
		return OverallInfo
	default:
		return OverallOK
	}
}

// IntegrityReport verifies with the configured algorithms and summarizes.
func (m *Manager) IntegrityReport(ctx context.Context) (Report, error) {
	result, err := m.Verify(ctx, nil)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Timestamp:     m.now().UTC().Truncate(time.Second),
		TotalLogs:     result.Total(),
		OverallStatus: StatusOf(result),
		Summary: ReportSummary{
			Verified:         len(result.Verified),
			Failed:           len(result.Failed),
			MissingChecksums: len(result.Missing),
			Corrupted:        len(result.Corrupted),
		},
		Details: result,
	}, nil
}
