// Package reliability models per-field reliability scores and the append-only
// history of score transitions for any (model, foreign key) pair.
package reliability

import (
	"math"
	"strconv"
	"time"
)

// Source identifies who produced a score transition.
type Source string

const (
	SourceUser   Source = "user"
	SourceAI     Source = "ai"
	SourceAdmin  Source = "admin"
	SourceSystem Source = "system"
)

// ValidSources lists every accepted Source in display order.
var ValidSources = []Source{SourceUser, SourceAI, SourceAdmin, SourceSystem}

func (s Source) Valid() bool {
	for _, candidate := range ValidSources {
		if s == candidate {
			return true
		}
	}
	return false
}

// Noise threshold for trend classification.
const TrendThreshold = 0.01

// FieldScore is the current score of one field of one entity. It is overwritten in place.
type FieldScore struct {
	Model      string
	ForeignKey string
	Field      string
	Score      float64
	Weight     float64
	MaxScore   float64
	Notes      *string
	Created    time.Time
	Modified   time.Time
}

// LogEntry is one immutable score transition.
type LogEntry struct {
	ID                  string
	Model               string
	ForeignKey          string
	FromTotalScore      *float64
	ToTotalScore        float64
	FromFieldScoresJSON *string
	ToFieldScoresJSON   string
	Source              Source
	ActorUserID         *string
	ActorService        *string
	Message             *string
	Checksum            string
	Created             time.Time
}

// Delta is to-from at score precision, and false when the entry has no prior total.
func (e LogEntry) Delta() (float64, bool) {
	if e.FromTotalScore == nil {
		return 0, false
	}
	return RoundScore(e.ToTotalScore-*e.FromTotalScore, 2), true
}

// FieldStats aggregates one field across all entities of a model.
type FieldStats struct {
	Field     string
	Count     int64
	AvgScore  float64
	MinScore  float64
	MaxScore  float64
	AvgWeight float64
}

// FieldAverage pairs a field with an averaged value; slices of it are ordered.
type FieldAverage struct {
	Field string
	Value float64
}

// ScoreTrends counts transitions by direction.
type ScoreTrends struct {
	Improvements int `json:"improvements"`
	Degradations int `json:"degradations"`
	NoChange     int `json:"no_change"`
}

// Classify adds one delta to the trend counters.
func (t *ScoreTrends) Classify(delta float64) {
	switch {
	case delta > TrendThreshold:
		t.Improvements++
	case delta < -TrendThreshold:
		t.Degradations++
	default:
		t.NoChange++
	}
}

// ChecksumFailure describes a log entry whose stored checksum no longer matches.
type ChecksumFailure struct {
	LogID            string    `json:"log_id"`
	ExpectedChecksum string    `json:"expected"`
	ComputedChecksum string    `json:"computed"`
	Created          time.Time `json:"created"`
	Reason           string    `json:"reason,omitempty"`
}

// VerificationResult is the outcome of a bulk checksum scan.
type VerificationResult struct {
	Verified int               `json:"verified"`
	Failed   int               `json:"failed"`
	Failures []ChecksumFailure `json:"failures"`
}

// RoundScore rounds half away from zero to the given number of decimals.
func RoundScore(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}

// FormatScore renders a total score the way it participates in checksums.
func FormatScore(value float64) string {
	return strconv.FormatFloat(RoundScore(value, 2), 'f', 2, 64)
}
