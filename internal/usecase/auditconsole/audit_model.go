// Package auditconsole is an interactive terminal view over the reliability
// audit log with checksum verification on demand.
package auditconsole

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"reliaudit/internal/bootstrap/logging"
	domainreliability "reliaudit/internal/domain/reliability"
)

const maxActivityLines = 8

// AuditService is the subset of the reliability service the console reads.
type AuditService interface {
	FindFor(ctx context.Context, model string, foreignKey string) ([]domainreliability.LogEntry, error)
	FindRecent(ctx context.Context, model string, limit int, days int) ([]domainreliability.LogEntry, error)
	VerifyEntry(ctx context.Context, id string) (domainreliability.LogEntry, *domainreliability.ChecksumFailure, error)
	VerifyChecksums(ctx context.Context, model string, foreignKey string) (domainreliability.VerificationResult, error)
}

type Options struct {
	Model           string
	ForeignKey      string
	Limit           int
	Days            int
	RefreshInterval time.Duration
}

type verdict struct {
	ok     bool
	reason string
}

type auditModel struct {
	ctx             context.Context
	service         AuditService
	model           string
	foreignKey      string
	limit           int
	days            int
	refreshInterval time.Duration

	entries       []domainreliability.LogEntry
	selectedIndex int
	verdicts      map[string]verdict
	status        string
	activity      []string
}

type entriesLoadedMsg struct {
	items []domainreliability.LogEntry
	err   error
}

type entryVerifiedMsg struct {
	id      string
	failure *domainreliability.ChecksumFailure
	err     error
}

type allVerifiedMsg struct {
	result domainreliability.VerificationResult
	err    error
}

type tickMsg struct{}

func NewAuditModel(ctx context.Context, service AuditService, options Options) tea.Model {
	limit := options.Limit
	if limit <= 0 {
		limit = 50
	}
	days := options.Days
	if days <= 0 {
		days = 30
	}
	interval := options.RefreshInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	return &auditModel{
		ctx:             ctx,
		service:         service,
		model:           strings.TrimSpace(options.Model),
		foreignKey:      strings.TrimSpace(options.ForeignKey),
		limit:           limit,
		days:            days,
		refreshInterval: interval,
		verdicts:        make(map[string]verdict),
		status:          "loading",
	}
}

func (m *auditModel) Init() tea.Cmd {
	return tea.Batch(m.loadEntriesCmd(), m.tickCmd())
}

func (m *auditModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := message.(type) {
	case tickMsg:
		return m, tea.Batch(m.loadEntriesCmd(), m.tickCmd())
	case entriesLoadedMsg:
		if msg.err != nil {
			m.status = "refresh failed: " + msg.err.Error()
			return m, nil
		}
		m.entries = msg.items
		if len(m.entries) == 0 {
			m.selectedIndex = 0
			m.status = "no entries"
			return m, nil
		}
		if m.selectedIndex >= len(m.entries) {
			m.selectedIndex = len(m.entries) - 1
		}
		m.status = fmt.Sprintf("loaded %d entries", len(m.entries))
		return m, nil
	case entryVerifiedMsg:
		if msg.err != nil {
			m.status = "verify failed: " + msg.err.Error()
			m.appendActivity("verify", msg.id, "error: "+msg.err.Error())
			return m, nil
		}
		if msg.failure != nil {
			m.verdicts[msg.id] = verdict{reason: msg.failure.Reason}
			m.status = "checksum mismatch: " + shortID(msg.id)
			m.appendActivity("verify", msg.id, "failed")
			return m, nil
		}
		m.verdicts[msg.id] = verdict{ok: true}
		m.status = "checksum ok: " + shortID(msg.id)
		m.appendActivity("verify", msg.id, "verified")
		return m, nil
	case allVerifiedMsg:
		if msg.err != nil {
			m.status = "verify all failed: " + msg.err.Error()
			m.appendActivity("verify-all", m.scope(), "error: "+msg.err.Error())
			return m, nil
		}
		failed := make(map[string]string, len(msg.result.Failures))
		for _, failure := range msg.result.Failures {
			failed[failure.LogID] = failure.Reason
		}
		for _, entry := range m.entries {
			if reason, ok := failed[entry.ID]; ok {
				m.verdicts[entry.ID] = verdict{reason: reason}
			} else {
				m.verdicts[entry.ID] = verdict{ok: true}
			}
		}
		m.status = fmt.Sprintf("verified=%d failed=%d", msg.result.Verified, msg.result.Failed)
		m.appendActivity("verify-all", m.scope(), m.status)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "g":
			m.status = "refreshing"
			return m, m.loadEntriesCmd()
		case "up", "k":
			if m.selectedIndex > 0 {
				m.selectedIndex--
			}
			return m, nil
		case "down", "j":
			if m.selectedIndex < len(m.entries)-1 {
				m.selectedIndex++
			}
			return m, nil
		case "v", "enter":
			return m, m.verifySelectedCmd()
		case "a":
			return m, m.verifyAllCmd()
		}
	}
	return m, nil
}

func (m *auditModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true)
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("62"))
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	badStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	var builder strings.Builder
	builder.WriteString(titleStyle.Render("Reliability Audit Console"))
	builder.WriteString("\n")
	builder.WriteString(dimStyle.Render(fmt.Sprintf(
		"scope=%s limit=%d days=%d refresh=%s",
		m.scope(), m.limit, m.days, m.refreshInterval,
	)))
	builder.WriteString("\n\n")

	builder.WriteString(sectionStyle.Render("Entries"))
	builder.WriteString("\n")
	if len(m.entries) == 0 {
		builder.WriteString(dimStyle.Render("- no entries"))
		builder.WriteString("\n\n")
	} else {
		for index, entry := range m.entries {
			line := fmt.Sprintf("%s %s %s %s -> %s [%s]",
				entry.Created.UTC().Format(time.RFC3339),
				shortID(entry.ID),
				shortID(entry.ForeignKey),
				formatOptionalScore(entry.FromTotalScore),
				domainreliability.FormatScore(entry.ToTotalScore),
				entry.Source,
			)
			mark := "  "
			if v, ok := m.verdicts[entry.ID]; ok {
				if v.ok {
					mark = okStyle.Render("✓ ")
				} else {
					mark = badStyle.Render("✗ ")
				}
			}
			if index == m.selectedIndex {
				builder.WriteString(mark + selectedStyle.Render("> "+line))
			} else {
				builder.WriteString(mark + "  " + line)
			}
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(sectionStyle.Render("Detail"))
	builder.WriteString("\n")
	if entry, ok := m.selectedEntry(); !ok {
		builder.WriteString(dimStyle.Render("- no detail"))
		builder.WriteString("\n\n")
	} else {
		builder.WriteString(fmt.Sprintf("ID: %s\n", entry.ID))
		builder.WriteString(fmt.Sprintf("Entity: %s/%s\n", entry.Model, entry.ForeignKey))
		builder.WriteString(fmt.Sprintf("Delta: %s\n", formatDelta(entry)))
		builder.WriteString(fmt.Sprintf("Actor: user=%s service=%s\n", derefOr(entry.ActorUserID, "-"), derefOr(entry.ActorService, "-")))
		builder.WriteString(fmt.Sprintf("Message: %s\n", derefOr(entry.Message, "-")))
		builder.WriteString(fmt.Sprintf("Checksum: %s\n", entry.Checksum))
		if v, ok := m.verdicts[entry.ID]; ok && !v.ok {
			builder.WriteString(badStyle.Render("Integrity: FAILED " + v.reason))
			builder.WriteString("\n")
		}
		builder.WriteString(fmt.Sprintf("Fields: %s\n", entry.ToFieldScoresJSON))
		builder.WriteString("\n")
	}

	builder.WriteString(sectionStyle.Render("Status"))
	builder.WriteString("\n")
	builder.WriteString("- " + firstNonEmpty(m.status, "ready"))
	builder.WriteString("\n\n")

	builder.WriteString(sectionStyle.Render("Activity"))
	builder.WriteString("\n")
	if len(m.activity) == 0 {
		builder.WriteString(dimStyle.Render("- no actions"))
		builder.WriteString("\n\n")
	} else {
		for _, line := range m.activity {
			builder.WriteString("- " + line)
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(dimStyle.Render("Keys: ↑/k ↓/j move  g refresh  v verify  a verify all  q quit"))
	return builder.String()
}

func (m *auditModel) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m *auditModel) loadEntriesCmd() tea.Cmd {
	return func() tea.Msg {
		var (
			items []domainreliability.LogEntry
			err   error
		)
		if m.foreignKey != "" {
			items, err = m.service.FindFor(m.ctx, m.model, m.foreignKey)
		} else {
			items, err = m.service.FindRecent(m.ctx, m.model, m.limit, m.days)
		}
		return entriesLoadedMsg{items: items, err: err}
	}
}

func (m *auditModel) verifySelectedCmd() tea.Cmd {
	entry, ok := m.selectedEntry()
	if !ok {
		m.status = "nothing selected"
		return nil
	}
	id := entry.ID
	m.status = "verifying " + shortID(id)
	return func() tea.Msg {
		_, failure, err := m.service.VerifyEntry(m.ctx, id)
		return entryVerifiedMsg{id: id, failure: failure, err: err}
	}
}

func (m *auditModel) verifyAllCmd() tea.Cmd {
	m.status = "verifying " + m.scope()
	return func() tea.Msg {
		result, err := m.service.VerifyChecksums(m.ctx, m.model, m.foreignKey)
		return allVerifiedMsg{result: result, err: err}
	}
}

func (m *auditModel) selectedEntry() (domainreliability.LogEntry, bool) {
	if m.selectedIndex < 0 || m.selectedIndex >= len(m.entries) {
		return domainreliability.LogEntry{}, false
	}
	return m.entries[m.selectedIndex], true
}

func (m *auditModel) scope() string {
	if m.foreignKey == "" {
		return m.model
	}
	return m.model + "/" + m.foreignKey
}

func (m *auditModel) appendActivity(action string, target string, result string) {
	timestamp := time.Now().UTC().Format(time.RFC3339)
	line := fmt.Sprintf("%s action=%s target=%s result=%s", timestamp, action, target, result)
	m.activity = append([]string{line}, m.activity...)
	if len(m.activity) > maxActivityLines {
		m.activity = m.activity[:maxActivityLines]
	}

	logging.Info(m.ctx, "audit console action",
		slog.String("action", action),
		slog.String("target", target),
		slog.String("result", result),
	)
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func formatOptionalScore(value *float64) string {
	if value == nil {
		return "null"
	}
	return domainreliability.FormatScore(*value)
}

func formatDelta(entry domainreliability.LogEntry) string {
	delta, ok := entry.Delta()
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%+.2f", delta)
}

func derefOr(value *string, fallback string) string {
	if value == nil {
		return fallback
	}
	return firstNonEmpty(*value, fallback)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		normalized := strings.TrimSpace(value)
		if normalized != "" {
			return normalized
		}
	}
	return ""
}
