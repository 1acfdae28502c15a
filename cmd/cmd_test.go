package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"reliaudit/internal/bootstrap"
	"reliaudit/internal/bootstrap/config"
	"reliaudit/internal/bootstrap/database"
	"reliaudit/internal/domain/checksum"
	"reliaudit/internal/errs"
	cacheinfra "reliaudit/internal/infrastructure/cache"
	"reliaudit/internal/infrastructure/checksumstore"
	sqliterepo "reliaudit/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "reliaudit/internal/infrastructure/persistence/sqlite/uow"
	"reliaudit/internal/usecase/linelog"
	"reliaudit/internal/usecase/logchecksum"
	"reliaudit/internal/usecase/reliability"
)

const testEntity = "6f1c2b9e-1a7d-4b44-8c2e-6b8f0c7d5e11"

func newTestDeps(t *testing.T) *appDeps {
	t.Helper()

	ctx := context.Background()
	root := t.TempDir()
	cfg := config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(root, "state", "test.sqlite")},
		Logs:     config.LogsConfig{Dir: filepath.Join(root, "logs"), BulkFile: filepath.Join(root, "logs", "bulk_actions.log")},
		Checksums: config.ChecksumsConfig{
			Dir:       filepath.Join(root, "checksums"),
			BackupDir: filepath.Join(root, "backups"),
		},
	}
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	app := &bootstrap.App{Config: cfg, DB: db}
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	if err := app.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	if err := os.MkdirAll(cfg.Logs.Dir, 0o755); err != nil {
		t.Fatalf("mkdir logs: %v", err)
	}

	cache := cacheinfra.NewSQLiteCache(db)
	manager := logchecksum.NewManager(logchecksum.Config{
		LogsDir:     cfg.Logs.Dir,
		ChecksumDir: cfg.Checksums.Dir,
		BackupDir:   cfg.Checksums.BackupDir,
		Algorithms:  checksum.DefaultAlgorithms,
	}, checksumstore.NewKVStore(cache))

	return &appDeps{
		App: app,
		Reliability: reliability.NewService(
			sqliterepo.NewReliabilityFieldRepository(db),
			sqliterepo.NewAuditLogRepository(db),
			sqliteuow.NewUnitOfWork(db),
			reliability.Options{},
		),
		Checksums:    manager,
		Monitor:      logchecksum.NewMonitor(manager, cache, time.Hour),
		BulkVerifier: linelog.NewVerifier(),
		BulkWriter:   linelog.NewWriter(cfg.Logs.BulkFile),
	}
}

func runCmd(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func expectExitCode(t *testing.T, err error, want int) {
	t.Helper()
	if got := ExitCode(err); got != want {
		t.Fatalf("ExitCode(%v) = %d, want %d", err, got, want)
	}
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "findings", err: findings("tampered"), want: 1},
		{name: "wrapped findings", err: errs.Wrap(findings("tampered"), "run command"), want: 1},
		{name: "operational", err: errors.New("disk full"), want: 2},
		{name: "validation", err: errs.Invalid("model", "is required"), want: 2},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ExitCode(tc.err); got != tc.want {
				t.Fatalf("ExitCode() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestParseFieldScore(t *testing.T) {
	t.Parallel()

	input, err := parseFieldScore("price=0.8")
	if err != nil {
		t.Fatalf("parseFieldScore() error = %v", err)
	}
	if input.Field != "price" || input.Score != 0.8 || input.Weight != 1 || input.MaxScore != nil {
		t.Fatalf("unexpected input %+v", input)
	}

	input, err = parseFieldScore(" title = 0.5:2:0.9 ")
	if err != nil {
		t.Fatalf("parseFieldScore() error = %v", err)
	}
	if input.Field != "title" || input.Weight != 2 || input.MaxScore == nil || *input.MaxScore != 0.9 {
		t.Fatalf("unexpected input %+v", input)
	}

	for _, raw := range []string{"price", "=0.5", "price=abc", "price=0.1:1:1:1"} {
		if _, err := parseFieldScore(raw); !errors.Is(err, errs.ErrValidation) {
			t.Fatalf("parseFieldScore(%q) error = %v, want validation error", raw, err)
		}
	}
}

func TestScoreRecordFlags(t *testing.T) {
	t.Parallel()

	cmd := newScoreRecordCmd(nil)
	if err := cmd.ParseFlags([]string{
		"--model", "Products",
		"--id", testEntity,
		"--field", "price=0.8",
		"--field", "title=0.6:2",
		"--source", "ai",
	}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	fields, _ := cmd.Flags().GetStringArray("field")
	if len(fields) != 2 || fields[1] != "title=0.6:2" {
		t.Fatalf("field = %v", fields)
	}
	source, _ := cmd.Flags().GetString("source")
	if source != "ai" {
		t.Fatalf("source = %q, want ai", source)
	}
}

func TestScoreAppendThenVerify(t *testing.T) {
	deps := newTestDeps(t)

	out, err := runCmd(t, newScoreCmd(deps), "append",
		"--model", "Products", "--id", testEntity,
		"--to", "0.75", "--to-fields", `{"price":0.8}`, "--source", "ai")
	if err != nil {
		t.Fatalf("score append error = %v", err)
	}
	if !strings.Contains(out, "0.75") {
		t.Fatalf("append output missing score:\n%s", out)
	}

	out, err = runCmd(t, newScoreCmd(deps), "verify", "--model", "Products")
	if err != nil {
		t.Fatalf("score verify error = %v", err)
	}
	if !strings.Contains(out, "verified=1 failed=0") {
		t.Fatalf("verify output = %q", out)
	}
}

func TestScoreVerifyReportsTampering(t *testing.T) {
	deps := newTestDeps(t)

	if _, err := runCmd(t, newScoreCmd(deps), "append",
		"--model", "Products", "--id", testEntity,
		"--to", "0.75", "--source", "user"); err != nil {
		t.Fatalf("score append error = %v", err)
	}
	if err := deps.App.DB.Exec("UPDATE reliability_logs SET to_total_score = 0.99").Error; err != nil {
		t.Fatalf("tamper: %v", err)
	}

	out, err := runCmd(t, newScoreCmd(deps), "verify", "--model", "Products", "--format", "json")
	expectExitCode(t, err, 1)
	if !strings.Contains(out, `"failed": 1`) {
		t.Fatalf("verify output = %s", out)
	}
}

func TestScoreAppendRejectsBadInput(t *testing.T) {
	deps := newTestDeps(t)

	_, err := runCmd(t, newScoreCmd(deps), "append",
		"--model", "Products", "--id", "not-a-uuid", "--to", "0.5")
	expectExitCode(t, err, 2)

	_, err = runCmd(t, newScoreCmd(deps), "verify", "--model", "Products", "--format", "xml")
	expectExitCode(t, err, 2)
}

func TestFieldsRecordAndGet(t *testing.T) {
	deps := newTestDeps(t)

	if _, err := runCmd(t, newScoreCmd(deps), "record",
		"--model", "Products", "--id", testEntity,
		"--field", "price=0.8", "--field", "title=0.4:2"); err != nil {
		t.Fatalf("score record error = %v", err)
	}

	out, err := runCmd(t, newFieldsCmd(deps), "get", "--model", "Products", "--id", testEntity)
	if err != nil {
		t.Fatalf("fields get error = %v", err)
	}
	if !strings.Contains(out, "price") || !strings.Contains(out, "title") {
		t.Fatalf("fields output = %s", out)
	}
}

func writeLog(t *testing.T, deps *appDeps, name string, content string) string {
	t.Helper()
	path := filepath.Join(deps.Checksums.Config().LogsDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestLogsGenerateVerifyAndTamper(t *testing.T) {
	deps := newTestDeps(t)
	path := writeLog(t, deps, "app.log", "line one\n")

	if _, err := runCmd(t, newLogsCmd(deps), "generate"); err != nil {
		t.Fatalf("logs generate error = %v", err)
	}
	out, err := runCmd(t, newLogsCmd(deps), "verify")
	if err != nil {
		t.Fatalf("logs verify error = %v", err)
	}
	if !strings.Contains(out, "verified") {
		t.Fatalf("verify output = %s", out)
	}

	if err := os.WriteFile(path, []byte("line one\nforged\n"), 0o644); err != nil {
		t.Fatalf("tamper log: %v", err)
	}
	out, err = runCmd(t, newLogsCmd(deps), "verify", "--format", "detailed")
	expectExitCode(t, err, 1)
	if !strings.Contains(out, "expected=") {
		t.Fatalf("detailed output = %s", out)
	}

	_, err = runCmd(t, newLogsCmd(deps), "report", "--format", "json")
	expectExitCode(t, err, 1)
}

func TestLogsVerifyMissingOnlyIsNotAFinding(t *testing.T) {
	deps := newTestDeps(t)
	writeLog(t, deps, "new.log", "fresh\n")

	out, err := runCmd(t, newLogsCmd(deps), "verify", "--algorithms", "sha256")
	if err != nil {
		t.Fatalf("logs verify error = %v", err)
	}
	if !strings.Contains(out, "missing") {
		t.Fatalf("verify output = %s", out)
	}

	_, err = runCmd(t, newLogsCmd(deps), "verify", "--algorithms", "crc32")
	expectExitCode(t, err, 2)
}

func TestLogsBackup(t *testing.T) {
	deps := newTestDeps(t)
	writeLog(t, deps, "app.log", "line one\n")
	dest := filepath.Join(t.TempDir(), "backup")

	out, err := runCmd(t, newLogsCmd(deps), "backup", "--backup-dir", dest)
	if err != nil {
		t.Fatalf("logs backup error = %v", err)
	}
	if !strings.Contains(out, "app.log") {
		t.Fatalf("backup output = %s", out)
	}
	if _, err := os.Stat(filepath.Join(dest, "app.log")); err != nil {
		t.Fatalf("backup copy missing: %v", err)
	}
}

func TestLogsMonitorOnce(t *testing.T) {
	deps := newTestDeps(t)
	writeLog(t, deps, "app.log", "line one\n")

	out, err := runCmd(t, newLogsCmd(deps), "monitor", "--once")
	if err != nil {
		t.Fatalf("logs monitor error = %v", err)
	}
	if !strings.Contains(out, "integrity status") {
		t.Fatalf("first monitor output = %s", out)
	}

	out, err = runCmd(t, newLogsCmd(deps), "monitor", "--once")
	if err != nil {
		t.Fatalf("logs monitor error = %v", err)
	}
	if !strings.Contains(out, "not due") {
		t.Fatalf("second monitor output = %s", out)
	}
}

func TestBulkLogAppendVerifyRepair(t *testing.T) {
	deps := newTestDeps(t)

	if _, err := runCmd(t, newBulkLogCmd(deps), "append",
		"--user", "u-1", "--action", "archive", "--id", "a", "--id", "b", "--payload", `{"reason":"stale"}`); err != nil {
		t.Fatalf("bulklog append error = %v", err)
	}
	out, err := runCmd(t, newBulkLogCmd(deps), "verify", "--verbose")
	if err != nil {
		t.Fatalf("bulklog verify error = %v", err)
	}
	if !strings.Contains(out, "1 valid") || !strings.Contains(out, "archive") {
		t.Fatalf("verify output = %s", out)
	}

	f, err := os.OpenFile(deps.BulkWriter.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open bulk log: %v", err)
	}
	if _, err := f.WriteString("garbage line\n"); err != nil {
		t.Fatalf("corrupt bulk log: %v", err)
	}
	_ = f.Close()

	out, err = runCmd(t, newBulkLogCmd(deps), "verify")
	expectExitCode(t, err, 1)
	if !strings.Contains(out, string(linelog.LineMalformedPrefix)) {
		t.Fatalf("verify output = %s", out)
	}

	out, err = runCmd(t, newBulkLogCmd(deps), "verify", "--repair")
	expectExitCode(t, err, 1)
	if !strings.Contains(out, "removed 1 lines") {
		t.Fatalf("repair output = %s", out)
	}

	if _, err := runCmd(t, newBulkLogCmd(deps), "verify"); err != nil {
		t.Fatalf("verify after repair error = %v", err)
	}
}

func TestConsoleAuditFlags(t *testing.T) {
	t.Parallel()

	cmd := newConsoleAuditCmd(nil)
	if err := cmd.ParseFlags([]string{"--model", "Products", "--limit", "20", "--refresh-interval", "30s"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	limit, _ := cmd.Flags().GetInt("limit")
	if limit != 20 {
		t.Fatalf("limit = %d, want 20", limit)
	}
	interval, _ := cmd.Flags().GetDuration("refresh-interval")
	if interval != 30*time.Second {
		t.Fatalf("refresh-interval = %s, want 30s", interval)
	}
}
