package logchecksum

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"reliaudit/internal/bootstrap/logging"
	"reliaudit/internal/errs"
	"reliaudit/internal/usecase/linelog"
)

// BulkLogVerifier is the line-log check run on every change of the watched file.
type BulkLogVerifier interface {
	Verify(ctx context.Context, path string) (linelog.VerifyResult, error)
}

// WatchBulkLog re-verifies path after every write or create event until ctx is done.
// The parent directory is watched so the file may be created or replaced.
// onResult, when set, receives every verification result.
func WatchBulkLog(ctx context.Context, verifier BulkLogVerifier, path string, onResult func(linelog.VerifyResult)) error {
	ctx = logging.WithAttrs(ctx,
		slog.String("component", "usecase.logchecksum.watch"),
		slog.String("path", path),
	)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errs.IO(err, "create file watcher")
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return errs.IO(err, "watch %s", filepath.Dir(target))
	}
	logging.Info(ctx, "watching bulk action log")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			result, err := verifier.Verify(ctx, target)
			if err != nil {
				logging.Warn(ctx, "bulk action log verification failed", slog.Any("err", err))
				continue
			}
			if result.Clean() {
				logging.Debug(ctx, "bulk action log clean", slog.Int("total_lines", result.TotalLines))
			} else {
				logging.Warn(ctx, "bulk action log corruption detected",
					slog.Int("invalid_lines", result.InvalidLines),
					slog.Any("corrupted_lines", result.CorruptedLines),
				)
			}
			if onResult != nil {
				onResult(result)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn(ctx, "file watcher error", slog.Any("err", err))
		}
	}
}
