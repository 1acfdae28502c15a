package ports

import (
	"context"
	"errors"
	"time"
)

var ErrChecksumNotFound = errors.New("checksum reference not found")

// FileChecksumRecord is the reference digest set captured for one log file.
type FileChecksumRecord struct {
	File        string            `json:"file" toml:"file"`
	Path        string            `json:"path" toml:"path"`
	Checksums   map[string]string `json:"checksums" toml:"checksums"`
	Size        int64             `json:"size" toml:"size"`
	ModTime     time.Time         `json:"mtime" toml:"mtime"`
	Permissions string            `json:"permissions" toml:"permissions"`
	GeneratedAt time.Time         `json:"generated_at" toml:"generated_at"`
}

// ChecksumStore persists reference digests keyed by file name.
type ChecksumStore interface {
	Load(ctx context.Context, file string) (FileChecksumRecord, error)
	Save(ctx context.Context, record FileChecksumRecord) error
	List(ctx context.Context) ([]FileChecksumRecord, error)
}
