package checksumstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"reliaudit/internal/errs"
	"reliaudit/internal/ports"
)

const tomlSuffix = ".checksums.toml"

// TOMLStore writes one sidecar TOML document per tracked file under dir.
type TOMLStore struct {
	dir string
}

var _ ports.ChecksumStore = (*TOMLStore)(nil)

func NewTOMLStore(dir string) *TOMLStore {
	return &TOMLStore{dir: dir}
}

func (s *TOMLStore) Load(ctx context.Context, file string) (ports.FileChecksumRecord, error) {
	if err := ctx.Err(); err != nil {
		return ports.FileChecksumRecord{}, errs.Wrap(err, "check context")
	}

	raw, err := os.ReadFile(s.pathFor(file))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ports.FileChecksumRecord{}, errs.Wrapf(ports.ErrChecksumNotFound, "file=%s", file)
		}
		return ports.FileChecksumRecord{}, errs.IO(err, "read checksum sidecar for %s", file)
	}

	var record ports.FileChecksumRecord
	if err := toml.Unmarshal(raw, &record); err != nil {
		return ports.FileChecksumRecord{}, &errs.EncodingError{Field: file, Err: err}
	}
	return record, nil
}

func (s *TOMLStore) Save(ctx context.Context, record ports.FileChecksumRecord) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}
	if strings.TrimSpace(record.File) == "" {
		return errs.Invalid("file", "is required")
	}

	raw, err := toml.Marshal(record)
	if err != nil {
		return &errs.EncodingError{Field: record.File, Err: err}
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errs.IO(err, "create checksum dir %s", s.dir)
	}

	target := s.pathFor(record.File)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errs.IO(err, "write checksum sidecar for %s", record.File)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return errs.IO(err, "replace checksum sidecar for %s", record.File)
	}
	return nil
}

func (s *TOMLStore) List(ctx context.Context) ([]ports.FileChecksumRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errs.IO(err, "list checksum dir %s", s.dir)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), tomlSuffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), tomlSuffix))
	}
	sort.Strings(names)

	records := make([]ports.FileChecksumRecord, 0, len(names))
	for _, name := range names {
		record, err := s.Load(ctx, name)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *TOMLStore) pathFor(file string) string {
	return filepath.Join(s.dir, filepath.Base(file)+tomlSuffix)
}
