package database

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"reliaudit/internal/bootstrap/config"
	"reliaudit/internal/bootstrap/logging"
	"reliaudit/internal/errs"
)

const memoryDSN = ":memory:"

// connectionPragma is set through the DSN so every pooled connection gets it.
// The CLI, monitor and audit console may hold the same file open at once.
const connectionPragma = "_pragma=busy_timeout(5000)"

func Open(ctx context.Context, cfg config.DatabaseConfig) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.database"))

	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "sqlite3":
		return openSQLite(logCtx, cfg.DSN)
	default:
		return nil, errs.Invalid("database.driver", "unsupported driver %q", cfg.Driver)
	}
}

func openSQLite(ctx context.Context, dsn string) (*gorm.DB, error) {
	path := sqliteFilePath(dsn)
	if path != "" {
		if err := ensureDirectory(ctx, filepath.Dir(path)); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(gormsqlite.Open(withPragma(dsn)), &gorm.Config{})
	if err != nil {
		return nil, errs.Wrap(err, "open sqlite db")
	}

	if path != "" {
		if err := db.WithContext(ctx).Exec("PRAGMA journal_mode = WAL").Error; err != nil {
			return nil, errs.Wrap(err, "enable wal journal")
		}
	} else {
		// Every pooled connection would see its own empty memory database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errs.Wrap(err, "get sql db")
		}
		sqlDB.SetMaxOpenConns(1)
	}

	logging.Info(ctx, "database opened",
		slog.String("driver", "sqlite"),
		slog.String("dsn", dsn),
		slog.Bool("in_memory", path == ""),
	)
	return db, nil
}

func withPragma(dsn string) string {
	if strings.Contains(dsn, "busy_timeout") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + connectionPragma
	}
	return dsn + "?" + connectionPragma
}

// sqliteFilePath strips the file: scheme and query from dsn. It returns ""
// for in-memory databases.
func sqliteFilePath(dsn string) string {
	candidate := strings.TrimSpace(dsn)
	if candidate == "" || candidate == memoryDSN {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(candidate), "file:") {
		candidate = candidate[len("file:"):]
	}
	if idx := strings.Index(candidate, "?"); idx >= 0 {
		if strings.Contains(candidate[idx:], "mode=memory") {
			return ""
		}
		candidate = candidate[:idx]
	}
	if candidate == memoryDSN {
		return ""
	}
	return candidate
}

func ensureDirectory(ctx context.Context, dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.IO(err, "create sqlite directory %q", dir)
	}
	logging.Debug(ctx, "sqlite directory ensured", slog.String("dir", dir))
	return nil
}

