package logchecksum

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"

	"reliaudit/internal/bootstrap/logging"
	"reliaudit/internal/domain/checksum"
	"reliaudit/internal/ports"
)

type Status string

const (
	StatusVerified  Status = "verified"
	StatusFailed    Status = "failed"
	StatusMissing   Status = "missing"
	StatusCorrupted Status = "corrupted"
)

// AlgorithmStatus values reported per requested algorithm.
const (
	AlgorithmVerified   = "verified"
	AlgorithmFailed     = "failed"
	AlgorithmNoChecksum = "no_checksum"
	AlgorithmError      = "error"
)

type AlgorithmCheck struct {
	Algorithm checksum.Algorithm `json:"algorithm"`
	Status    string             `json:"status"`
	Expected  string             `json:"expected,omitempty"`
	Actual    string             `json:"actual,omitempty"`
}

type FileResult struct {
	File                  string           `json:"file"`
	Status                Status           `json:"status"`
	Checks                []AlgorithmCheck `json:"algorithms,omitempty"`
	ModifiedSinceChecksum bool             `json:"modified_since_checksum,omitempty"`
	ChecksumAgeSeconds    int64            `json:"checksum_age,omitempty"`
	Error                 string           `json:"error,omitempty"`
}

type VerifyResult struct {
	Verified  []FileResult `json:"verified"`
	Failed    []FileResult `json:"failed"`
	Missing   []FileResult `json:"missing"`
	Corrupted []FileResult `json:"corrupted"`
}

func (r VerifyResult) Total() int {
	return len(r.Verified) + len(r.Failed) + len(r.Missing) + len(r.Corrupted)
}

// Files returns every result ordered by file name.
func (r VerifyResult) Files() []FileResult {
	out := make([]FileResult, 0, r.Total())
	out = append(out, r.Verified...)
	out = append(out, r.Failed...)
	out = append(out, r.Missing...)
	out = append(out, r.Corrupted...)
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out
}

func (r *VerifyResult) add(result FileResult) {
	switch result.Status {
	case StatusVerified:
		r.Verified = append(r.Verified, result)
	case StatusFailed:
		r.Failed = append(r.Failed, result)
	case StatusMissing:
		r.Missing = append(r.Missing, result)
	default:
		r.Corrupted = append(r.Corrupted, result)
	}
}

// Verify compares every tracked file against its reference digests.
// A file with no reference is missing, an unreadable tracked file is corrupted
// and a readable file whose digest differs for any algorithm is failed.
func (m *Manager) Verify(ctx context.Context, requested []checksum.Algorithm) (VerifyResult, error) {
	ctx, err := m.context(ctx, "verify")
	if err != nil {
		return VerifyResult{}, err
	}
	algs := m.algorithms(requested)

	files, records, err := m.trackedFiles(ctx)
	if err != nil {
		return VerifyResult{}, err
	}

	var result VerifyResult
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return VerifyResult{}, err
		}
		record, ok := records[file]
		result.add(m.verifyFile(file, record, ok, algs))
	}

	logging.Info(ctx, "log checksums verified",
		slog.Int("verified", len(result.Verified)),
		slog.Int("failed", len(result.Failed)),
		slog.Int("missing", len(result.Missing)),
		slog.Int("corrupted", len(result.Corrupted)),
	)
	return result, nil
}

func (m *Manager) verifyFile(file string, record ports.FileChecksumRecord, tracked bool, algs []checksum.Algorithm) FileResult {
	result := FileResult{File: file, Status: StatusVerified}
	path := m.pathFor(file)

	info, statErr := os.Stat(path)
	if !tracked {
		result.Status = StatusMissing
		result.Error = "no reference checksum on record"
		if statErr != nil {
			result.Error = "log file not found"
		}
		return result
	}
	if statErr != nil {
		result.Status = StatusCorrupted
		result.Error = statErr.Error()
		if errors.Is(statErr, os.ErrNotExist) {
			result.Error = "tracked log file not found"
		}
		return result
	}

	have := make([]checksum.Algorithm, 0, len(algs))
	for _, alg := range algs {
		if _, ok := record.Checksums[string(alg)]; ok {
			have = append(have, alg)
		}
	}

	var actual map[checksum.Algorithm]string
	if len(have) > 0 {
		digests, err := checksum.DigestFile(path, have)
		if err != nil {
			result.Status = StatusCorrupted
			result.Error = err.Error()
			for _, alg := range algs {
				result.Checks = append(result.Checks, AlgorithmCheck{Algorithm: alg, Status: AlgorithmError})
			}
			return result
		}
		actual = digests
	}

	for _, alg := range algs {
		expected, ok := record.Checksums[string(alg)]
		if !ok {
			result.Checks = append(result.Checks, AlgorithmCheck{Algorithm: alg, Status: AlgorithmNoChecksum})
			if result.Status == StatusVerified {
				result.Status = StatusMissing
			}
			continue
		}
		check := AlgorithmCheck{Algorithm: alg, Status: AlgorithmVerified, Expected: expected, Actual: actual[alg]}
		if check.Actual != expected {
			check.Status = AlgorithmFailed
			result.Status = StatusFailed
		}
		result.Checks = append(result.Checks, check)
	}

	if mtime := info.ModTime(); !record.GeneratedAt.IsZero() && mtime.After(record.GeneratedAt) {
		result.ModifiedSinceChecksum = true
		result.ChecksumAgeSeconds = int64(mtime.Sub(record.GeneratedAt).Seconds())
	}
	return result
}
