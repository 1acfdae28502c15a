package linelog

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"reliaudit/internal/bootstrap/logging"
	"reliaudit/internal/domain/checksum"
	"reliaudit/internal/errs"
	"reliaudit/internal/infrastructure/filelock"
)

const AnonymousUser = "anonymous"

// BulkAction is one administrative action over a set of entity ids.
type BulkAction struct {
	UserID  string
	Action  string
	IDs     []string
	Payload map[string]any
}

// bulkRecord fixes the serialized key order of a line.
type bulkRecord struct {
	Timestamp string         `json:"timestamp"`
	UserID    string         `json:"user_id"`
	Action    string         `json:"action"`
	IDs       []string       `json:"ids"`
	Payload   map[string]any `json:"payload"`
	Result    map[string]any `json:"result"`
}

// Writer appends checksummed lines. Appends and repairs of the same file exclude each other.
type Writer struct {
	path string
	now  func() time.Time
}

func NewWriter(path string) *Writer {
	return &Writer{path: path, now: time.Now}
}

func (w *Writer) Path() string {
	return w.path
}

// Append writes one line and returns it without the trailing newline.
func (w *Writer) Append(ctx context.Context, action BulkAction) (string, error) {
	name := strings.TrimSpace(action.Action)
	if name == "" {
		return "", errs.Invalid("action", "is required")
	}
	userID := strings.TrimSpace(action.UserID)
	if userID == "" {
		userID = AnonymousUser
	}
	payload := action.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	ids := normalizeIDs(action.IDs)
	encoded, err := checksum.EncodeJSON(bulkRecord{
		Timestamp: w.now().Format(time.RFC3339),
		UserID:    userID,
		Action:    name,
		IDs:       ids,
		Payload:   payload,
		Result:    payload,
	})
	if err != nil {
		return "", err
	}
	line := FormatLine(encoded)

	lock, err := filelock.Acquire(ctx, filelock.PathFor(w.path))
	if err != nil {
		return "", err
	}
	defer lock.Release()

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return "", errs.IO(err, "create log dir for %s", w.path)
	}
	f, err := os.OpenFile(w.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return "", errs.IO(err, "open line log %s", w.path)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return "", errs.IO(err, "append to line log %s", w.path)
	}
	if err := f.Close(); err != nil {
		return "", errs.IO(err, "close line log %s", w.path)
	}

	logging.Info(ctx, "bulk action logged",
		slog.String("component", "usecase.linelog"),
		slog.String("action", name),
		slog.String("user_id", userID),
		slog.Int("ids", len(ids)),
	)
	return line, nil
}

// normalizeIDs trims, drops empties, de-duplicates and sorts.
func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
