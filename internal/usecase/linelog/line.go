// Package linelog verifies, repairs and appends to line-oriented logs whose
// every line carries the SHA-256 of its own JSON payload.
package linelog

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"reliaudit/internal/domain/checksum"
)

var linePattern = regexp.MustCompile(`^\[sha256=([a-f0-9]{64})\] (.+)$`)

// RequiredFields must be present and non-null in every payload.
var RequiredFields = []string{"timestamp", "user_id", "action", "ids"}

type LineStatus string

const (
	LineValid            LineStatus = "valid"
	LineEmpty            LineStatus = "empty"
	LineMalformedPrefix  LineStatus = "malformed_prefix"
	LineChecksumMismatch LineStatus = "checksum_mismatch"
	LineInvalidJSON      LineStatus = "invalid_json"
	LineMissingField     LineStatus = "missing_field"
)

// Corrupt reports whether the status marks a line for removal on repair.
func (s LineStatus) Corrupt() bool {
	return s != LineValid && s != LineEmpty
}

// LineCheck is the verdict on one line.
type LineCheck struct {
	Status   LineStatus
	Detail   string
	Expected string
	Actual   string
	// Summary of a valid record, for verbose output.
	Action  string
	UserID  string
	IDCount int
}

// FormatLine frames payload with its checksum prefix.
func FormatLine(payload []byte) string {
	return fmt.Sprintf("[sha256=%s] %s", checksum.Digest(payload), payload)
}

// CheckLine runs the per-line state machine. Lines are trimmed first.
func CheckLine(line string) LineCheck {
	line = strings.TrimSpace(line)
	if line == "" {
		return LineCheck{Status: LineEmpty}
	}

	matches := linePattern.FindStringSubmatch(line)
	if matches == nil {
		return LineCheck{Status: LineMalformedPrefix, Detail: "missing or invalid checksum prefix"}
	}

	expected, payload := matches[1], matches[2]
	actual := checksum.Digest([]byte(payload))
	if actual != expected {
		return LineCheck{Status: LineChecksumMismatch, Detail: "checksum mismatch", Expected: expected, Actual: actual}
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return LineCheck{Status: LineInvalidJSON, Detail: err.Error()}
	}
	if record == nil {
		return LineCheck{Status: LineInvalidJSON, Detail: "payload is not a JSON object"}
	}

	for _, field := range RequiredFields {
		if value, ok := record[field]; !ok || value == nil {
			return LineCheck{Status: LineMissingField, Detail: "missing required field: " + field}
		}
	}
	ids, ok := record["ids"].([]any)
	if !ok {
		return LineCheck{Status: LineMissingField, Detail: "ids must be an array"}
	}

	check := LineCheck{Status: LineValid, IDCount: len(ids)}
	check.Action, _ = record["action"].(string)
	check.UserID = fmt.Sprint(record["user_id"])
	return check
}
