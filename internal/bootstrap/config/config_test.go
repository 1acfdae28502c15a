package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), writeConfig(t, "app:\n  env: test\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.Name != "reliaudit" || cfg.App.Env != "test" {
		t.Fatalf("unexpected app config: %+v", cfg.App)
	}
	if cfg.Checksums.Store != StoreSQLite || strings.Join(cfg.Checksums.Algorithms, ",") != "sha256,md5,sha1" {
		t.Fatalf("unexpected checksum config: %+v", cfg.Checksums)
	}
	if cfg.Monitor.Interval != time.Hour {
		t.Fatalf("unexpected monitor interval %s", cfg.Monitor.Interval)
	}
	if !cfg.Reliability.ImmutableTriggers || cfg.Reliability.DefaultService != "reliability-service" {
		t.Fatalf("unexpected reliability config: %+v", cfg.Reliability)
	}
	if cfg.Logs.BulkFile != "logs/bulk_actions.log" {
		t.Fatalf("unexpected logs config: %+v", cfg.Logs)
	}
}

func TestLoadOverridesFromFileAndEnv(t *testing.T) {
	t.Setenv("RA_CHECKSUMS_STORE", "TOML")
	path := writeConfig(t, strings.Join([]string{
		"checksums:",
		"  algorithms: [sha512]",
		"monitor:",
		"  interval: 15m",
		"",
	}, "\n"))

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Checksums.Store != StoreTOML {
		t.Fatalf("expected toml store, got %q", cfg.Checksums.Store)
	}
	algs, err := cfg.Checksums.ParsedAlgorithms()
	if err != nil || len(algs) != 1 || algs[0] != "sha512" {
		t.Fatalf("unexpected algorithms %v %v", algs, err)
	}
	if cfg.Monitor.Interval != 15*time.Minute {
		t.Fatalf("unexpected interval %s", cfg.Monitor.Interval)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	testCases := []struct {
		name string
		body string
		want string
	}{
		{name: "empty dsn", body: "database:\n  dsn: \"\"\n", want: "database.dsn"},
		{name: "unknown store", body: "checksums:\n  store: redis\n", want: "checksums.store"},
		{name: "unknown algorithm", body: "checksums:\n  algorithms: [crc32]\n", want: "checksums.algorithms"},
		{name: "unknown log level", body: "log:\n  level: loud\n", want: "log.level"},
		{name: "unknown log format", body: "log:\n  format: xml\n", want: "log.format"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := Load(context.Background(), writeConfig(t, testCase.body))
			if err == nil || !strings.Contains(err.Error(), testCase.want) {
				t.Fatalf("expected error mentioning %q, got %v", testCase.want, err)
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(context.Background(), filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}
