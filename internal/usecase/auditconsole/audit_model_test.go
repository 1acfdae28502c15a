package auditconsole

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	domainreliability "reliaudit/internal/domain/reliability"
)

type fakeService struct {
	entries  []domainreliability.LogEntry
	failures map[string]*domainreliability.ChecksumFailure
	calls    []string
}

func (f *fakeService) FindFor(_ context.Context, model string, foreignKey string) ([]domainreliability.LogEntry, error) {
	f.calls = append(f.calls, "for:"+model+"/"+foreignKey)
	return f.entries, nil
}

func (f *fakeService) FindRecent(_ context.Context, model string, _ int, _ int) ([]domainreliability.LogEntry, error) {
	f.calls = append(f.calls, "recent:"+model)
	return f.entries, nil
}

func (f *fakeService) VerifyEntry(_ context.Context, id string) (domainreliability.LogEntry, *domainreliability.ChecksumFailure, error) {
	if id == "missing" {
		return domainreliability.LogEntry{}, nil, errors.New("not found")
	}
	return domainreliability.LogEntry{ID: id}, f.failures[id], nil
}

func (f *fakeService) VerifyChecksums(_ context.Context, _ string, _ string) (domainreliability.VerificationResult, error) {
	result := domainreliability.VerificationResult{}
	for _, entry := range f.entries {
		if failure, ok := f.failures[entry.ID]; ok {
			result.Failed++
			result.Failures = append(result.Failures, *failure)
			continue
		}
		result.Verified++
	}
	return result, nil
}

func sampleEntries() []domainreliability.LogEntry {
	from := 0.30
	return []domainreliability.LogEntry{
		{ID: "11111111-aaaa", Model: "Products", ForeignKey: "p-1", FromTotalScore: &from, ToTotalScore: 0.65, Source: domainreliability.SourceAI},
		{ID: "22222222-bbbb", Model: "Products", ForeignKey: "p-2", ToTotalScore: 0.42, Source: domainreliability.SourceUser},
	}
}

func run(t *testing.T, model tea.Model, cmd tea.Cmd) *auditModel {
	t.Helper()
	if cmd != nil {
		next, _ := model.Update(cmd())
		model = next
	}
	updated, ok := model.(*auditModel)
	if !ok {
		t.Fatalf("type assertion failed: %T", model)
	}
	return updated
}

func TestLoadUsesForeignKeyScope(t *testing.T) {
	service := &fakeService{entries: sampleEntries()}

	recent := NewAuditModel(context.Background(), service, Options{Model: "Products"}).(*auditModel)
	run(t, recent, recent.loadEntriesCmd())
	scoped := NewAuditModel(context.Background(), service, Options{Model: "Products", ForeignKey: "p-1"}).(*auditModel)
	updated := run(t, scoped, scoped.loadEntriesCmd())

	if strings.Join(service.calls, ",") != "recent:Products,for:Products/p-1" {
		t.Fatalf("unexpected calls: %v", service.calls)
	}
	if len(updated.entries) != 2 || updated.status != "loaded 2 entries" {
		t.Fatalf("unexpected state: entries=%d status=%q", len(updated.entries), updated.status)
	}
}

func TestVerifySelectedRecordsVerdict(t *testing.T) {
	service := &fakeService{
		entries: sampleEntries(),
		failures: map[string]*domainreliability.ChecksumFailure{
			"22222222-bbbb": {LogID: "22222222-bbbb", Reason: "checksum mismatch"},
		},
	}
	model := NewAuditModel(context.Background(), service, Options{Model: "Products"}).(*auditModel)
	model = run(t, model, model.loadEntriesCmd())

	model = run(t, model, model.verifySelectedCmd())
	if v := model.verdicts["11111111-aaaa"]; !v.ok {
		t.Fatalf("expected first entry verified: %+v", v)
	}

	next, _ := model.Update(tea.KeyMsg{Type: tea.KeyDown})
	model = next.(*auditModel)
	model = run(t, model, model.verifySelectedCmd())
	if v := model.verdicts["22222222-bbbb"]; v.ok || v.reason != "checksum mismatch" {
		t.Fatalf("expected failed verdict: %+v", v)
	}
	if !strings.Contains(model.View(), "Integrity: FAILED checksum mismatch") {
		t.Fatalf("view does not show failure:\n%s", model.View())
	}
	if len(model.activity) != 2 || !strings.Contains(model.activity[0], "result=failed") {
		t.Fatalf("unexpected activity: %v", model.activity)
	}
}

func TestVerifyAllMarksEveryEntry(t *testing.T) {
	service := &fakeService{
		entries: sampleEntries(),
		failures: map[string]*domainreliability.ChecksumFailure{
			"11111111-aaaa": {LogID: "11111111-aaaa", Reason: "checksum mismatch"},
		},
	}
	model := NewAuditModel(context.Background(), service, Options{Model: "Products"}).(*auditModel)
	model = run(t, model, model.loadEntriesCmd())
	model = run(t, model, model.verifyAllCmd())

	if model.verdicts["11111111-aaaa"].ok || !model.verdicts["22222222-bbbb"].ok {
		t.Fatalf("unexpected verdicts: %+v", model.verdicts)
	}
	if model.status != "verified=1 failed=1" {
		t.Fatalf("unexpected status %q", model.status)
	}
}

func TestVerifyErrorKeepsVerdictsUnchanged(t *testing.T) {
	service := &fakeService{entries: []domainreliability.LogEntry{{ID: "missing", Model: "Products"}}}
	model := NewAuditModel(context.Background(), service, Options{Model: "Products"}).(*auditModel)
	model = run(t, model, model.loadEntriesCmd())
	model = run(t, model, model.verifySelectedCmd())

	if len(model.verdicts) != 0 || !strings.HasPrefix(model.status, "verify failed") {
		t.Fatalf("unexpected state: verdicts=%v status=%q", model.verdicts, model.status)
	}
}

func TestSelectionStaysInBounds(t *testing.T) {
	model := &auditModel{ctx: context.Background(), entries: sampleEntries(), verdicts: map[string]verdict{}}
	next, _ := model.Update(tea.KeyMsg{Type: tea.KeyUp})
	model = next.(*auditModel)
	if model.selectedIndex != 0 {
		t.Fatalf("selectedIndex = %d, want 0", model.selectedIndex)
	}
	for i := 0; i < 5; i++ {
		next, _ = model.Update(tea.KeyMsg{Type: tea.KeyDown})
		model = next.(*auditModel)
	}
	if model.selectedIndex != 1 {
		t.Fatalf("selectedIndex = %d, want 1", model.selectedIndex)
	}

	next, _ = model.Update(entriesLoadedMsg{items: sampleEntries()[:1]})
	model = next.(*auditModel)
	if model.selectedIndex != 0 {
		t.Fatalf("selectedIndex after shrink = %d, want 0", model.selectedIndex)
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("123456789"); got != "12345678" {
		t.Fatalf("shortID = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Fatalf("shortID = %q", got)
	}
}

func TestFormatDelta(t *testing.T) {
	entries := sampleEntries()
	if got := formatDelta(entries[0]); got != "+0.35" {
		t.Fatalf("formatDelta = %q, want +0.35", got)
	}
	if got := formatDelta(entries[1]); got != "-" {
		t.Fatalf("formatDelta without prior = %q, want -", got)
	}
}
