// Package checksum holds the canonical encoding and digest primitives shared by the
// audit log, the bulk action line log and whole-file integrity tracking.
package checksum

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	"reliaudit/internal/errs"
)

// TimeLayout is the only timestamp format that ever reaches a digest.
const TimeLayout = time.RFC3339

var hexDigestPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Canonicalize encodes payload as compact JSON with keys sorted at every depth,
// HTML characters and slashes left unescaped and non-ASCII printed as UTF-8.
// Nested json.RawMessage values are decoded first so formatting differences vanish.
func Canonicalize(payload map[string]any) ([]byte, error) {
	normalized, err := normalizeMap(payload)
	if err != nil {
		return nil, err
	}
	return encode(normalized)
}

// Digest returns the lowercase hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestPayload canonicalizes payload and digests the result.
func DigestPayload(payload map[string]any) (string, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	return Digest(canonical), nil
}

// Verify recomputes the digest of payload and compares it to expected exactly.
func Verify(payload map[string]any, expected string) (bool, error) {
	computed, err := DigestPayload(payload)
	if err != nil {
		return false, err
	}
	return computed == expected, nil
}

// IsHexDigest reports whether value looks like a SHA-256 hex digest.
func IsHexDigest(value string) bool {
	return hexDigestPattern.MatchString(value)
}

// DecodeJSON parses stored JSON text into generic values. Numbers keep their
// literal text so re-encoding never drifts.
func DecodeJSON(raw string) (any, error) {
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return value, nil
}

// FormatTime renders t in TimeLayout, UTC, truncated to whole seconds.
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(TimeLayout)
}

// EncodeJSON is the line-log flavour of the canonical encoder: it keeps struct
// field order but shares the escaping rules.
func EncodeJSON(value any) ([]byte, error) {
	return encode(value)
}

func encode(value any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(value); err != nil {
		return nil, &errs.EncodingError{Err: err}
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func normalizeMap(in map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(in))
	keys := make([]string, 0, len(in))
	for key := range in {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value, err := normalizeValue(in[key])
		if err != nil {
			return nil, &errs.EncodingError{Field: key, Err: err}
		}
		out[key] = value
	}
	return out, nil
}

func normalizeValue(value any) (any, error) {
	switch v := value.(type) {
	case nil, bool, string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return v, nil
	case float32, float64:
		if _, err := json.Marshal(v); err != nil {
			return nil, err
		}
		return v, nil
	case json.RawMessage:
		decoded, err := DecodeJSON(string(v))
		if err != nil {
			return nil, err
		}
		return normalizeValue(decoded)
	case map[string]any:
		return normalizeMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			normalized, err := normalizeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = normalized
		}
		return out, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		decoded, err := DecodeJSON(string(raw))
		if err != nil {
			return nil, err
		}
		return normalizeValue(decoded)
	}
}
