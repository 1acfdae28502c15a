package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"strings"

	"reliaudit/internal/errs"
)

// Algorithm names a whole-file digest.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	MD5    Algorithm = "md5"
	SHA1   Algorithm = "sha1"
	SHA512 Algorithm = "sha512"
)

// DefaultAlgorithms is the set tracked when none is requested.
var DefaultAlgorithms = []Algorithm{SHA256, MD5, SHA1}

func (a Algorithm) newHash() (hash.Hash, bool) {
	switch a {
	case SHA256:
		return sha256.New(), true
	case MD5:
		return md5.New(), true
	case SHA1:
		return sha1.New(), true
	case SHA512:
		return sha512.New(), true
	default:
		return nil, false
	}
}

// ParseAlgorithms normalizes names (trim, lowercase, dedupe) and rejects unknown ones.
// Comma-separated entries are split so "sha256,md5" and ["sha256","md5"] are equivalent.
func ParseAlgorithms(names []string) ([]Algorithm, error) {
	seen := make(map[Algorithm]struct{}, len(names))
	out := make([]Algorithm, 0, len(names))
	for _, raw := range names {
		for _, part := range strings.Split(raw, ",") {
			name := Algorithm(strings.ToLower(strings.TrimSpace(part)))
			if name == "" {
				continue
			}
			if _, ok := name.newHash(); !ok {
				return nil, errs.Invalid("algorithms", "unsupported hash algorithm %q", string(name))
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return append([]Algorithm(nil), DefaultAlgorithms...), nil
	}
	return out, nil
}

// DigestReader hashes r once with every algorithm and returns hex digests plus bytes read.
func DigestReader(r io.Reader, algorithms []Algorithm) (map[Algorithm]string, int64, error) {
	hashes := make(map[Algorithm]hash.Hash, len(algorithms))
	writers := make([]io.Writer, 0, len(algorithms))
	for _, algorithm := range algorithms {
		h, ok := algorithm.newHash()
		if !ok {
			return nil, 0, errs.Invalid("algorithms", "unsupported hash algorithm %q", string(algorithm))
		}
		hashes[algorithm] = h
		writers = append(writers, h)
	}

	n, err := io.Copy(io.MultiWriter(writers...), r)
	if err != nil {
		return nil, n, err
	}

	out := make(map[Algorithm]string, len(hashes))
	for algorithm, h := range hashes {
		out[algorithm] = hex.EncodeToString(h.Sum(nil))
	}
	return out, n, nil
}

// DigestFile hashes the full contents of path.
func DigestFile(path string, algorithms []Algorithm) (map[Algorithm]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.IO(err, "open %s", path)
	}
	defer f.Close()

	digests, _, err := DigestReader(f, algorithms)
	if err != nil {
		return nil, errs.IO(err, "read %s", path)
	}
	return digests, nil
}
