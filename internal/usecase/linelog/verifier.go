package linelog

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"reliaudit/internal/bootstrap/logging"
	"reliaudit/internal/errs"
	"reliaudit/internal/infrastructure/filelock"
)

const (
	backupLayout  = "2006-01-02_15-04-05"
	maxLineLength = 16 << 20
)

// LineIssue locates one corrupt line. Line numbers are physical and 1-based.
type LineIssue struct {
	Line   int        `json:"line"`
	Status LineStatus `json:"status"`
	Detail string     `json:"detail"`
}

type VerifyResult struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
	// TotalLines counts non-empty lines.
	TotalLines     int         `json:"total_lines"`
	ValidLines     int         `json:"valid_lines"`
	InvalidLines   int         `json:"invalid_lines"`
	CorruptedLines []int       `json:"corrupted_lines"`
	Issues         []LineIssue `json:"issues"`
	// Valid holds the verdict of every valid line; filled only when verbose.
	Valid map[int]LineCheck `json:"-"`
}

func (r VerifyResult) Clean() bool {
	return r.InvalidLines == 0
}

type RepairResult struct {
	BackupPath   string `json:"backup_path"`
	RemovedLines int    `json:"removed_lines"`
	KeptLines    int    `json:"kept_lines"`
}

type Verifier struct {
	now     func() time.Time
	verbose bool
	maxLine int
}

func NewVerifier() *Verifier {
	return &Verifier{now: time.Now, maxLine: maxLineLength}
}

// Verbose returns a copy that records every valid line's verdict.
func (v *Verifier) Verbose() *Verifier {
	clone := *v
	clone.verbose = true
	return &clone
}

// Verify checks every line of path. A missing file is clean, not an error.
func (v *Verifier) Verify(ctx context.Context, path string) (VerifyResult, error) {
	result := VerifyResult{Path: path, CorruptedLines: []int{}, Issues: []LineIssue{}}
	ctx = logging.WithAttrs(ctx, slog.String("component", "usecase.linelog"), slog.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Warn(ctx, "line log does not exist")
			return result, nil
		}
		return result, errs.IO(err, "open line log %s", path)
	}
	defer f.Close()
	result.Exists = true

	if err := v.scan(ctx, f, &result); err != nil {
		return result, errs.IO(err, "read line log %s", path)
	}

	if result.InvalidLines > 0 {
		logging.Warn(ctx, "line log has corrupted entries",
			slog.Int("total", result.TotalLines),
			slog.Int("invalid", result.InvalidLines),
		)
	} else {
		logging.Info(ctx, "line log verified", slog.Int("total", result.TotalLines))
	}
	return result, nil
}

func (v *Verifier) scan(ctx context.Context, r io.Reader, result *VerifyResult) error {
	reader := bufio.NewReaderSize(r, 64*1024)
	var buf []byte

	lineNo := 0
	for {
		line, read, oversize, err := readLine(reader, v.maxLine, buf[:0])
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if read == 0 {
			return nil
		}
		buf = line
		lineNo++
		if lineNo%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		var check LineCheck
		if oversize {
			check = LineCheck{Status: LineMalformedPrefix, Detail: fmt.Sprintf("line exceeds %d bytes", v.maxLine)}
		} else {
			check = CheckLine(string(line))
		}
		switch {
		case check.Status == LineEmpty:
		case check.Status.Corrupt():
			result.TotalLines++
			result.InvalidLines++
			result.CorruptedLines = append(result.CorruptedLines, lineNo)
			detail := check.Detail
			if check.Status == LineChecksumMismatch {
				detail = fmt.Sprintf("expected %s, actual %s", check.Expected, check.Actual)
			}
			result.Issues = append(result.Issues, LineIssue{Line: lineNo, Status: check.Status, Detail: detail})
		default:
			result.TotalLines++
			result.ValidLines++
			if v.verbose {
				if result.Valid == nil {
					result.Valid = map[int]LineCheck{}
				}
				result.Valid[lineNo] = check
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
	}
}

// readLine reads one physical line without its line ending. A line longer
// than limit is drained and returned empty with oversize set. read is zero
// only at end of input.
func readLine(r *bufio.Reader, limit int, buf []byte) (line []byte, read int, oversize bool, err error) {
	for {
		chunk, readErr := r.ReadSlice('\n')
		read += len(chunk)
		if !oversize {
			// Room for a CRLF ending on top of limit.
			if len(buf)+len(chunk) > limit+2 {
				oversize = true
				buf = buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(readErr, bufio.ErrBufferFull) {
			continue
		}
		buf = bytes.TrimSuffix(buf, []byte("\n"))
		buf = bytes.TrimSuffix(buf, []byte("\r"))
		if len(buf) > limit {
			oversize = true
			buf = buf[:0]
		}
		return buf, read, oversize, readErr
	}
}

// Repair backs path up, then rewrites it without the given physical lines.
// Nothing is rewritten unless the backup succeeded.
func (v *Verifier) Repair(ctx context.Context, path string, corrupted []int) (RepairResult, error) {
	lock, err := filelock.Acquire(ctx, filelock.PathFor(path))
	if err != nil {
		return RepairResult{}, err
	}
	defer lock.Release()

	return v.repairLocked(ctx, path, corrupted)
}

// Scrub verifies and, when anything is corrupt, repairs path under one lock.
func (v *Verifier) Scrub(ctx context.Context, path string) (VerifyResult, *RepairResult, error) {
	lock, err := filelock.Acquire(ctx, filelock.PathFor(path))
	if err != nil {
		return VerifyResult{}, nil, err
	}
	defer lock.Release()

	result, err := v.Verify(ctx, path)
	if err != nil || result.Clean() {
		return result, nil, err
	}
	repaired, err := v.repairLocked(ctx, path, result.CorruptedLines)
	if err != nil {
		return result, nil, err
	}
	return result, &repaired, nil
}

func (v *Verifier) repairLocked(ctx context.Context, path string, corrupted []int) (RepairResult, error) {
	ctx = logging.WithAttrs(ctx, slog.String("component", "usecase.linelog"), slog.String("path", path))

	original, err := os.ReadFile(path)
	if err != nil {
		return RepairResult{}, errs.IO(err, "read line log %s", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return RepairResult{}, errs.IO(err, "stat line log %s", path)
	}

	backupPath, err := v.writeBackup(path, original, info.Mode().Perm())
	if err != nil {
		return RepairResult{}, err
	}
	logging.Info(ctx, "line log backup created", slog.String("backup", backupPath))

	drop := make(map[int]struct{}, len(corrupted))
	for _, n := range corrupted {
		drop[n] = struct{}{}
	}

	text := strings.TrimSuffix(string(original), "\n")
	var lines []string
	if len(original) > 0 {
		lines = strings.Split(text, "\n")
	}
	kept := make([]string, 0, len(lines))
	removed := 0
	for i, line := range lines {
		if _, ok := drop[i+1]; ok {
			removed++
			continue
		}
		kept = append(kept, line)
	}

	content := ""
	if len(kept) > 0 {
		content = strings.Join(kept, "\n") + "\n"
	}
	if err := replaceFile(path, []byte(content), info.Mode().Perm()); err != nil {
		return RepairResult{}, err
	}

	result := RepairResult{BackupPath: backupPath, RemovedLines: removed, KeptLines: len(kept)}
	logging.Info(ctx, "line log repaired",
		slog.Int("removed", result.RemovedLines),
		slog.Int("kept", result.KeptLines),
	)
	return result, nil
}

// writeBackup never overwrites an existing backup.
func (v *Verifier) writeBackup(path string, content []byte, perm os.FileMode) (string, error) {
	base := path + ".backup." + v.now().Format(backupLayout)
	candidate := base
	for attempt := 1; ; attempt++ {
		f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
		if errors.Is(err, os.ErrExist) {
			candidate = fmt.Sprintf("%s-%d", base, attempt)
			continue
		}
		if err != nil {
			return "", errs.IO(err, "create backup %s", candidate)
		}
		if _, err := f.Write(content); err != nil {
			_ = f.Close()
			_ = os.Remove(candidate)
			return "", errs.IO(err, "write backup %s", candidate)
		}
		if err := f.Sync(); err != nil {
			_ = f.Close()
			_ = os.Remove(candidate)
			return "", errs.IO(err, "sync backup %s", candidate)
		}
		if err := f.Close(); err != nil {
			return "", errs.IO(err, "close backup %s", candidate)
		}
		return candidate, nil
	}
}

func replaceFile(path string, content []byte, perm os.FileMode) error {
	tmp := path + ".repair.tmp"
	if err := os.WriteFile(tmp, content, perm); err != nil {
		_ = os.Remove(tmp)
		return errs.IO(err, "write repaired log %s", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errs.IO(err, "replace line log %s", path)
	}
	return nil
}
