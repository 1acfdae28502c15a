package linelog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestWriterAppendProducesVerifiableLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bulk_actions.log")
	w := NewWriter(path)
	w.now = func() time.Time { return time.Date(2026, 6, 1, 10, 0, 0, 0, time.FixedZone("CEST", 2*3600)) }
	ctx := context.Background()

	line, err := w.Append(ctx, BulkAction{
		Action:  "bulk_approve",
		IDs:     []string{" b ", "a", "b", ""},
		Payload: map[string]any{"updated_count": 2, "url": "https://example.test/a?b=1&c=<d>"},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	wantJSON := `{"timestamp":"2026-06-01T10:00:00+02:00","user_id":"anonymous","action":"bulk_approve","ids":["a","b"],` +
		`"payload":{"updated_count":2,"url":"https://example.test/a?b=1&c=<d>"},"result":{"updated_count":2,"url":"https://example.test/a?b=1&c=<d>"}}`
	if !strings.HasSuffix(line, "] "+wantJSON) {
		t.Fatalf("unexpected line: %s", line)
	}

	if _, err := w.Append(ctx, BulkAction{UserID: "u-7", Action: "bulk_edit_dispatch", IDs: []string{"x"}}); err != nil {
		t.Fatalf("Append(second): %v", err)
	}

	result, err := NewVerifier().Verify(ctx, path)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.TotalLines != 2 || !result.Clean() {
		t.Fatalf("written lines must verify: %+v", result)
	}
}

func TestWriterRejectsMissingAction(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "bulk_actions.log"))
	if _, err := w.Append(context.Background(), BulkAction{IDs: []string{"a"}}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestWriterConcurrentAppendsStayIntact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bulk_actions.log")
	w := NewWriter(path)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.Append(ctx, BulkAction{Action: "bulk_verify", IDs: []string{"a", "b", "c"}}); err != nil {
				t.Errorf("Append: %v", err)
			}
		}()
	}
	wg.Wait()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n := strings.Count(string(raw), "\n"); n != 16 {
		t.Fatalf("expected 16 lines, got %d", n)
	}
	result, err := NewVerifier().Verify(ctx, path)
	if err != nil || !result.Clean() {
		t.Fatalf("concurrent appends corrupted the log: %+v %v", result, err)
	}
}
