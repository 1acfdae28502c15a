package logchecksum

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"reliaudit/internal/usecase/linelog"
)

type memoryCache struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *memoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.values[key]
	return value, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	delete(c.ttls, key)
	return nil
}

func TestMonitorCheckIfDueRespectsInterval(t *testing.T) {
	f := newFixture(t, map[string]string{"a.log": "a\n"})
	ctx := context.Background()
	if _, err := f.manager.Generate(ctx, nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	cache := newMemoryCache()
	monitor := NewMonitor(f.manager, cache, time.Hour)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	monitor.now = func() time.Time { return now }

	report, ran, err := monitor.CheckIfDue(ctx)
	if err != nil || !ran {
		t.Fatalf("first check: ran=%v err=%v", ran, err)
	}
	if report.OverallStatus != OverallOK {
		t.Fatalf("unexpected status %s", report.OverallStatus)
	}
	if got := cache.values[KeyLastVerification]; got != "2026-05-01T12:00:00Z" {
		t.Fatalf("unexpected last verification %q", got)
	}
	var stored Report
	if err := json.Unmarshal([]byte(cache.values[KeyLastReport]), &stored); err != nil {
		t.Fatalf("decode stored report: %v", err)
	}
	if stored.Summary.Verified != 1 {
		t.Fatalf("unexpected stored report: %+v", stored)
	}
	if _, ok := cache.values[KeyCriticalAlert]; ok {
		t.Fatalf("critical alert set for a clean report")
	}

	now = now.Add(30 * time.Minute)
	if _, ran, err := monitor.CheckIfDue(ctx); err != nil || ran {
		t.Fatalf("check within interval: ran=%v err=%v", ran, err)
	}

	now = now.Add(30 * time.Minute)
	if _, ran, err := monitor.CheckIfDue(ctx); err != nil || !ran {
		t.Fatalf("check after interval: ran=%v err=%v", ran, err)
	}
	history, err := monitor.History(ctx)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 || cache.ttls[KeyHistory] != historyTTL {
		t.Fatalf("unexpected history: %+v ttl=%s", history, cache.ttls[KeyHistory])
	}
}

func TestMonitorCriticalAlertAndHistoryCap(t *testing.T) {
	f := newFixture(t, map[string]string{"a.log": "a\n", "b.log": "b\n"})
	ctx := context.Background()
	if _, err := f.manager.Generate(ctx, nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := os.Remove(filepath.Join(f.logsDir, "b.log")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	cache := newMemoryCache()
	monitor := NewMonitor(f.manager, cache, time.Minute)
	for i := 0; i < historyLimit+3; i++ {
		report, err := monitor.Check(ctx)
		if err != nil {
			t.Fatalf("Check %d: %v", i, err)
		}
		if report.OverallStatus != OverallCritical {
			t.Fatalf("expected CRITICAL, got %s", report.OverallStatus)
		}
	}

	var alert CriticalAlert
	if err := json.Unmarshal([]byte(cache.values[KeyCriticalAlert]), &alert); err != nil {
		t.Fatalf("decode alert: %v", err)
	}
	if len(alert.Corrupted) != 1 || alert.Corrupted[0] != "b.log" {
		t.Fatalf("unexpected alert: %+v", alert)
	}
	if cache.ttls[KeyCriticalAlert] != criticalAlertTTL {
		t.Fatalf("unexpected alert ttl %s", cache.ttls[KeyCriticalAlert])
	}

	history, err := monitor.History(ctx)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != historyLimit {
		t.Fatalf("expected %d history entries, got %d", historyLimit, len(history))
	}
}

func TestMonitorTreatsGarbledTimestampAsDue(t *testing.T) {
	f := newFixture(t, nil)
	cache := newMemoryCache()
	cache.values[KeyLastVerification] = "yesterday"

	monitor := NewMonitor(f.manager, cache, time.Hour)
	if _, ran, err := monitor.CheckIfDue(context.Background()); err != nil || !ran {
		t.Fatalf("ran=%v err=%v", ran, err)
	}
}

func TestWatchBulkLogVerifiesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bulk_actions.log")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan linelog.VerifyResult, 16)
	done := make(chan error, 1)
	go func() {
		done <- WatchBulkLog(ctx, linelog.NewVerifier(), path, func(r linelog.VerifyResult) { results <- r })
	}()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case result := <-results:
			// a write may be observed between truncate and content
			if result.InvalidLines != 1 {
				continue
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("WatchBulkLog: %v", err)
			}
			return
		case <-tick.C:
			if err := os.WriteFile(path, []byte("not a checksummed line\n"), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
		case <-deadline:
			t.Fatalf("no verification observed")
		}
	}
}
