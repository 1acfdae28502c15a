package logchecksum

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"reliaudit/internal/bootstrap/logging"
	"reliaudit/internal/errs"
	"reliaudit/internal/ports"
)

const (
	KeyLastVerification = "log_integrity:last_verification"
	KeyLastReport       = "log_integrity:last_report"
	KeyHistory          = "log_integrity:history"
	KeyCriticalAlert    = "log_integrity:critical_alert"

	DefaultMonitorInterval = time.Hour
	historyLimit           = 10
	historyTTL             = 7 * 24 * time.Hour
	criticalAlertTTL       = 24 * time.Hour
)

// HistoryEntry is one compact verification outcome kept in the rolling history.
type HistoryEntry struct {
	Timestamp     time.Time     `json:"timestamp"`
	OverallStatus OverallStatus `json:"overall_status"`
	Summary       ReportSummary `json:"summary"`
}

type CriticalAlert struct {
	Timestamp time.Time `json:"timestamp"`
	Corrupted []string  `json:"corrupted_files"`
}

// Monitor runs the integrity report at most once per interval and records the
// outcome in the cache.
type Monitor struct {
	manager  *Manager
	cache    ports.Cache
	interval time.Duration
	now      func() time.Time
}

func NewMonitor(manager *Manager, cache ports.Cache, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	return &Monitor{manager: manager, cache: cache, interval: interval, now: time.Now}
}

// CheckIfDue runs a verification when none ran within the interval.
// The returned bool reports whether a check ran.
func (m *Monitor) CheckIfDue(ctx context.Context) (Report, bool, error) {
	if m.manager == nil || m.cache == nil {
		return Report{}, false, errors.New("monitor dependencies are required")
	}
	ctx = logging.WithAttrs(ctx, slog.String("component", "usecase.logchecksum.monitor"))

	due, err := m.due(ctx)
	if err != nil {
		return Report{}, false, err
	}
	if !due {
		return Report{}, false, nil
	}
	report, err := m.Check(ctx)
	return report, err == nil, err
}

func (m *Monitor) due(ctx context.Context) (bool, error) {
	raw, found, err := m.cache.Get(ctx, KeyLastVerification)
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	last, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		logging.Warn(ctx, "discarding unparsable last verification time", slog.String("value", raw))
		return true, nil
	}
	return m.now().Sub(last) >= m.interval, nil
}

// Check verifies unconditionally and stores the results.
func (m *Monitor) Check(ctx context.Context) (Report, error) {
	report, err := m.manager.IntegrityReport(ctx)
	if err != nil {
		logging.Error(ctx, "log integrity check failed", slog.Any("err", err))
		return Report{}, err
	}

	m.logReport(ctx, report)
	if err := m.store(ctx, report); err != nil {
		logging.Error(ctx, "store log integrity results failed", slog.Any("err", err))
		return report, err
	}
	return report, nil
}

func (m *Monitor) logReport(ctx context.Context, report Report) {
	attrs := []slog.Attr{
		slog.String("overall_status", string(report.OverallStatus)),
		slog.Int("total_logs", report.TotalLogs),
		slog.Int("verified", report.Summary.Verified),
		slog.Int("failed", report.Summary.Failed),
		slog.Int("missing_checksums", report.Summary.MissingChecksums),
		slog.Int("corrupted", report.Summary.Corrupted),
	}
	switch report.OverallStatus {
	case OverallCritical:
		logging.Error(ctx, "log integrity critical: corrupted log files detected", attrs...)
	case OverallWarning:
		logging.Warn(ctx, "log integrity warning: checksum verification failed", attrs...)
	case OverallInfo:
		logging.Info(ctx, "log integrity info: log files without checksums", attrs...)
	default:
		logging.Debug(ctx, "log integrity ok", attrs...)
	}
}

func (m *Monitor) store(ctx context.Context, report Report) error {
	now := m.now().UTC()
	if err := m.cache.Set(ctx, KeyLastVerification, now.Format(time.RFC3339), 0); err != nil {
		return err
	}

	encoded, err := json.Marshal(report)
	if err != nil {
		return errs.Wrap(err, "encode integrity report")
	}
	if err := m.cache.Set(ctx, KeyLastReport, string(encoded), 0); err != nil {
		return err
	}

	history, err := m.History(ctx)
	if err != nil {
		return err
	}
	history = append(history, HistoryEntry{
		Timestamp:     report.Timestamp,
		OverallStatus: report.OverallStatus,
		Summary:       report.Summary,
	})
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	encoded, err = json.Marshal(history)
	if err != nil {
		return errs.Wrap(err, "encode integrity history")
	}
	if err := m.cache.Set(ctx, KeyHistory, string(encoded), historyTTL); err != nil {
		return err
	}

	if report.OverallStatus != OverallCritical {
		return nil
	}
	alert := CriticalAlert{Timestamp: report.Timestamp}
	for _, file := range report.Details.Corrupted {
		alert.Corrupted = append(alert.Corrupted, file.File)
	}
	encoded, err = json.Marshal(alert)
	if err != nil {
		return errs.Wrap(err, "encode critical alert")
	}
	return m.cache.Set(ctx, KeyCriticalAlert, string(encoded), criticalAlertTTL)
}

// History returns the stored rolling history, oldest first.
func (m *Monitor) History(ctx context.Context) ([]HistoryEntry, error) {
	raw, found, err := m.cache.Get(ctx, KeyHistory)
	if err != nil || !found {
		return nil, err
	}
	var history []HistoryEntry
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		logging.Warn(ctx, "discarding unreadable integrity history", slog.Any("err", err))
		return nil, nil
	}
	return history, nil
}

// Run checks on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	if _, _, err := m.CheckIfDue(ctx); err != nil && ctx.Err() == nil {
		logging.Warn(ctx, "log integrity monitor tick failed", slog.Any("err", err))
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, _, err := m.CheckIfDue(ctx); err != nil && ctx.Err() == nil {
				logging.Warn(ctx, "log integrity monitor tick failed", slog.Any("err", err))
			}
		}
	}
}
