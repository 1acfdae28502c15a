// Package logchecksum tracks whole-file reference digests of the log directory,
// verifies files against them and produces verified backups.
package logchecksum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"reliaudit/internal/bootstrap/logging"
	"reliaudit/internal/domain/checksum"
	"reliaudit/internal/errs"
	"reliaudit/internal/ports"
)

const (
	ManifestName = "master_checksums.txt"
	logSuffix    = ".log"
	digestLimit  = 4
)

type Config struct {
	LogsDir     string
	ChecksumDir string
	BackupDir   string
	Algorithms  []checksum.Algorithm
}

type Manager struct {
	cfg   Config
	store ports.ChecksumStore
	now   func() time.Time
}

func NewManager(cfg Config, store ports.ChecksumStore) *Manager {
	if len(cfg.Algorithms) == 0 {
		cfg.Algorithms = checksum.DefaultAlgorithms
	}
	return &Manager{cfg: cfg, store: store, now: time.Now}
}

func (m *Manager) Config() Config {
	return m.cfg
}

func (m *Manager) context(ctx context.Context, op string) (context.Context, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}
	if m.store == nil {
		return nil, errors.New("checksum store is required")
	}
	return logging.WithAttrs(ctx,
		slog.String("component", "usecase.logchecksum"),
		slog.String("op", op),
	), nil
}

func (m *Manager) algorithms(requested []checksum.Algorithm) []checksum.Algorithm {
	if len(requested) == 0 {
		return m.cfg.Algorithms
	}
	return requested
}

// LogFiles lists the *.log files currently present in the logs directory.
func (m *Manager) LogFiles() ([]string, error) {
	entries, err := os.ReadDir(m.cfg.LogsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errs.IO(err, "list logs dir %s", m.cfg.LogsDir)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.HasSuffix(entry.Name(), logSuffix) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// trackedFiles is every on-disk log plus every file that has a reference record.
func (m *Manager) trackedFiles(ctx context.Context) ([]string, map[string]ports.FileChecksumRecord, error) {
	onDisk, err := m.LogFiles()
	if err != nil {
		return nil, nil, err
	}
	records, err := m.store.List(ctx)
	if err != nil {
		return nil, nil, err
	}

	byFile := make(map[string]ports.FileChecksumRecord, len(records))
	seen := make(map[string]struct{}, len(onDisk)+len(records))
	files := make([]string, 0, len(onDisk)+len(records))
	for _, name := range onDisk {
		seen[name] = struct{}{}
		files = append(files, name)
	}
	for _, record := range records {
		byFile[record.File] = record
		if _, ok := seen[record.File]; !ok {
			seen[record.File] = struct{}{}
			files = append(files, record.File)
		}
	}
	sort.Strings(files)
	return files, byFile, nil
}

func (m *Manager) pathFor(file string) string {
	return filepath.Join(m.cfg.LogsDir, file)
}

// Generate computes and stores reference digests for every log file, then
// rewrites the master manifest. sha256 is always computed for the manifest.
func (m *Manager) Generate(ctx context.Context, requested []checksum.Algorithm) ([]ports.FileChecksumRecord, error) {
	ctx, err := m.context(ctx, "generate")
	if err != nil {
		return nil, err
	}
	algs := withSHA256(m.algorithms(requested))

	files, err := m.LogFiles()
	if err != nil {
		return nil, err
	}

	records := make([]ports.FileChecksumRecord, len(files))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(digestLimit)
	for i, file := range files {
		i, file := i, file
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			record, err := m.snapshot(file, algs)
			if err != nil {
				return err
			}
			records[i] = record
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	for _, record := range records {
		if err := m.store.Save(ctx, record); err != nil {
			return nil, err
		}
	}
	if err := m.writeManifest(records); err != nil {
		return nil, err
	}

	logging.Info(ctx, "log checksums generated",
		slog.Int("files", len(records)),
		slog.String("algorithms", joinAlgorithms(algs)),
	)
	return records, nil
}

func (m *Manager) snapshot(file string, algs []checksum.Algorithm) (ports.FileChecksumRecord, error) {
	path := m.pathFor(file)
	info, err := os.Stat(path)
	if err != nil {
		return ports.FileChecksumRecord{}, errs.IO(err, "stat %s", path)
	}
	digests, err := checksum.DigestFile(path, algs)
	if err != nil {
		return ports.FileChecksumRecord{}, err
	}

	sums := make(map[string]string, len(digests))
	for alg, sum := range digests {
		sums[string(alg)] = sum
	}
	return ports.FileChecksumRecord{
		File:        file,
		Path:        path,
		Checksums:   sums,
		Size:        info.Size(),
		ModTime:     info.ModTime().UTC(),
		Permissions: fmt.Sprintf("%04o", info.Mode().Perm()),
		GeneratedAt: m.now().UTC(),
	}, nil
}

func (m *Manager) manifestPath() string {
	return filepath.Join(m.cfg.ChecksumDir, ManifestName)
}

func (m *Manager) writeManifest(records []ports.FileChecksumRecord) error {
	var b strings.Builder
	for _, record := range records {
		fmt.Fprintf(&b, "%s  %s\n", record.Checksums[string(checksum.SHA256)], record.File)
	}
	if err := os.MkdirAll(m.cfg.ChecksumDir, 0o755); err != nil {
		return errs.IO(err, "create checksum dir %s", m.cfg.ChecksumDir)
	}
	if err := os.WriteFile(m.manifestPath(), []byte(b.String()), 0o644); err != nil {
		return errs.IO(err, "write master manifest")
	}
	return nil
}

func withSHA256(algs []checksum.Algorithm) []checksum.Algorithm {
	for _, alg := range algs {
		if alg == checksum.SHA256 {
			return algs
		}
	}
	return append([]checksum.Algorithm{checksum.SHA256}, algs...)
}

func joinAlgorithms(algs []checksum.Algorithm) string {
	names := make([]string, 0, len(algs))
	for _, alg := range algs {
		names = append(names, string(alg))
	}
	return strings.Join(names, ",")
}
