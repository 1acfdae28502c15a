package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"reliaudit/internal/bootstrap/config"
	"reliaudit/internal/errs"
)

func TestSQLiteFilePath(t *testing.T) {
	cases := []struct {
		dsn  string
		want string
	}{
		{dsn: "", want: ""},
		{dsn: ":memory:", want: ""},
		{dsn: "file::memory:?cache=shared", want: ""},
		{dsn: "file:test.db?mode=memory", want: ""},
		{dsn: "state/app.sqlite", want: "state/app.sqlite"},
		{dsn: "file:state/app.sqlite?_txlock=immediate", want: "state/app.sqlite"},
	}
	for _, tc := range cases {
		if got := sqliteFilePath(tc.dsn); got != tc.want {
			t.Fatalf("sqliteFilePath(%q) = %q, want %q", tc.dsn, got, tc.want)
		}
	}
}

func TestOpenCreatesDirectoryAndAppliesPragmas(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "state", "app.sqlite")
	db, err := Open(context.Background(), config.DatabaseConfig{Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	if _, err := os.Stat(filepath.Dir(dsn)); err != nil {
		t.Fatalf("directory not created: %v", err)
	}

	var mode string
	if err := db.Raw("PRAGMA journal_mode").Scan(&mode).Error; err != nil {
		t.Fatalf("read journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("journal_mode = %q, want wal", mode)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "postgres", DSN: "x"})
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("Open error = %v, want validation error", err)
	}
}

func TestWithPragma(t *testing.T) {
	if got := withPragma("app.sqlite"); got != "app.sqlite?_pragma=busy_timeout(5000)" {
		t.Fatalf("withPragma() = %q", got)
	}
	if got := withPragma("file:app.sqlite?cache=shared"); got != "file:app.sqlite?cache=shared&_pragma=busy_timeout(5000)" {
		t.Fatalf("withPragma() = %q", got)
	}
	if got := withPragma("app.sqlite?_pragma=busy_timeout(100)"); got != "app.sqlite?_pragma=busy_timeout(100)" {
		t.Fatalf("withPragma() = %q", got)
	}
}
