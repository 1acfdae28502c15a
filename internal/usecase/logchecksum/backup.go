package logchecksum

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"reliaudit/internal/bootstrap/logging"
	"reliaudit/internal/domain/checksum"
	"reliaudit/internal/errs"
)

const backupDirLayout = "2006-01-02_15-04-05"

type BackupFile struct {
	BackedUp          bool   `json:"backed_up"`
	IntegrityVerified bool   `json:"integrity_verified"`
	Size              int64  `json:"size,omitempty"`
	Checksum          string `json:"checksum,omitempty"`
	Error             string `json:"error,omitempty"`
}

type BackupResult struct {
	Dir   string                `json:"dir"`
	Files map[string]BackupFile `json:"files"`
}

func (r BackupResult) AllVerified() bool {
	for _, file := range r.Files {
		if !file.BackedUp || !file.IntegrityVerified {
			return false
		}
	}
	return true
}

// CreateVerifiedBackup refreshes the reference digests, copies every log file
// into destDir and checks each copy's sha256 against the fresh reference.
// An empty destDir means a timestamped directory under the backup root.
func (m *Manager) CreateVerifiedBackup(ctx context.Context, destDir string) (BackupResult, error) {
	if destDir == "" {
		destDir = filepath.Join(m.cfg.BackupDir, m.now().Format(backupDirLayout))
	}

	records, err := m.Generate(ctx, nil)
	if err != nil {
		return BackupResult{}, err
	}
	ctx, err = m.context(ctx, "backup")
	if err != nil {
		return BackupResult{}, err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return BackupResult{}, errs.IO(err, "create backup dir %s", destDir)
	}

	result := BackupResult{Dir: destDir, Files: make(map[string]BackupFile, len(records))}
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		target := filepath.Join(destDir, record.File)
		size, err := copyFile(m.pathFor(record.File), target)
		if err != nil {
			result.Files[record.File] = BackupFile{Error: err.Error()}
			logging.Warn(ctx, "log backup copy failed", slog.String("file", record.File), slog.Any("err", err))
			continue
		}

		entry := BackupFile{BackedUp: true, Size: size}
		digests, err := checksum.DigestFile(target, []checksum.Algorithm{checksum.SHA256})
		if err != nil {
			entry.Error = err.Error()
		} else {
			entry.Checksum = digests[checksum.SHA256]
			entry.IntegrityVerified = entry.Checksum == record.Checksums[string(checksum.SHA256)]
		}
		result.Files[record.File] = entry
	}

	manifestDir := filepath.Join(destDir, "checksums")
	if err := os.MkdirAll(manifestDir, 0o755); err != nil {
		return result, errs.IO(err, "create backup checksum dir")
	}
	if _, err := copyFile(m.manifestPath(), filepath.Join(manifestDir, ManifestName)); err != nil {
		return result, err
	}

	logging.Info(ctx, "verified backup created",
		slog.String("backup_dir", destDir),
		slog.Int("files", len(result.Files)),
		slog.Bool("all_verified", result.AllVerified()),
	)
	return result, nil
}

func copyFile(src string, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, errs.IO(err, "open %s", src)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, errs.IO(err, "create %s", dst)
	}
	n, err := io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		return n, errs.IO(err, "copy %s", src)
	}
	if err := out.Close(); err != nil {
		return n, errs.IO(err, "close %s", dst)
	}
	return n, nil
}
