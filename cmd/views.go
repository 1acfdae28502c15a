package cmd

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	domainreliability "reliaudit/internal/domain/reliability"
)

type entryView struct {
	ID              string          `json:"id"`
	Model           string          `json:"model"`
	ForeignKey      string          `json:"foreign_key"`
	FromTotalScore  *float64        `json:"from_total_score"`
	ToTotalScore    float64         `json:"to_total_score"`
	FromFieldScores json.RawMessage `json:"from_field_scores"`
	ToFieldScores   json.RawMessage `json:"to_field_scores"`
	Source          string          `json:"source"`
	ActorUserID     *string         `json:"actor_user_id"`
	ActorService    *string         `json:"actor_service"`
	Message         *string         `json:"message"`
	Checksum        string          `json:"checksum"`
	Created         string          `json:"created"`
}

func toEntryView(entry domainreliability.LogEntry) entryView {
	view := entryView{
		ID:             entry.ID,
		Model:          entry.Model,
		ForeignKey:     entry.ForeignKey,
		FromTotalScore: entry.FromTotalScore,
		ToTotalScore:   entry.ToTotalScore,
		ToFieldScores:  rawJSON(&entry.ToFieldScoresJSON),
		Source:         string(entry.Source),
		ActorUserID:    entry.ActorUserID,
		ActorService:   entry.ActorService,
		Message:        entry.Message,
		Checksum:       entry.Checksum,
		Created:        entry.Created.UTC().Format(time.RFC3339),
	}
	view.FromFieldScores = rawJSON(entry.FromFieldScoresJSON)
	return view
}

// rawJSON embeds stored JSON text as-is, or null when absent or not valid JSON.
func rawJSON(value *string) json.RawMessage {
	if value == nil || !json.Valid([]byte(*value)) {
		return json.RawMessage("null")
	}
	return json.RawMessage(*value)
}

func entryViews(entries []domainreliability.LogEntry) []entryView {
	views := make([]entryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, toEntryView(entry))
	}
	return views
}

func entryRows(entries []domainreliability.LogEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		from := "-"
		delta := "-"
		if entry.FromTotalScore != nil {
			from = domainreliability.FormatScore(*entry.FromTotalScore)
		}
		if d, ok := entry.Delta(); ok {
			delta = domainreliability.FormatScore(d)
		}
		rows = append(rows, []string{
			entry.Created.UTC().Format(time.RFC3339),
			entry.ID,
			entry.ForeignKey,
			from,
			domainreliability.FormatScore(entry.ToTotalScore),
			delta,
			string(entry.Source),
			derefString(entry.ActorUserID),
			derefString(entry.ActorService),
		})
	}
	return rows
}

var entryHeader = []string{"CREATED", "ID", "FOREIGN_KEY", "FROM", "TO", "DELTA", "SOURCE", "ACTOR_USER", "ACTOR_SERVICE"}

type fieldView struct {
	Model      string  `json:"model"`
	ForeignKey string  `json:"foreign_key"`
	Field      string  `json:"field"`
	Score      float64 `json:"score"`
	Weight     float64 `json:"weight"`
	MaxScore   float64 `json:"max_score"`
	Notes      *string `json:"notes"`
	Modified   string  `json:"modified"`
}

func toFieldView(field domainreliability.FieldScore) fieldView {
	return fieldView{
		Model:      field.Model,
		ForeignKey: field.ForeignKey,
		Field:      field.Field,
		Score:      field.Score,
		Weight:     field.Weight,
		MaxScore:   field.MaxScore,
		Notes:      field.Notes,
		Modified:   field.Modified.UTC().Format(time.RFC3339),
	}
}

func fieldViews(fields []domainreliability.FieldScore) []fieldView {
	views := make([]fieldView, 0, len(fields))
	for _, field := range fields {
		views = append(views, toFieldView(field))
	}
	return views
}

func fieldRows(fields []domainreliability.FieldScore) [][]string {
	rows := make([][]string, 0, len(fields))
	for _, field := range fields {
		rows = append(rows, []string{
			field.ForeignKey,
			field.Field,
			domainreliability.FormatScore(field.Score),
			formatWeight(field.Weight),
			domainreliability.FormatScore(field.MaxScore),
			derefString(field.Notes),
		})
	}
	return rows
}

var fieldHeader = []string{"FOREIGN_KEY", "FIELD", "SCORE", "WEIGHT", "MAX_SCORE", "NOTES"}

func sortedFieldMap(fields map[string]domainreliability.FieldScore) []domainreliability.FieldScore {
	out := make([]domainreliability.FieldScore, 0, len(fields))
	for _, field := range fields {
		out = append(out, field)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

func formatWeight(value float64) string {
	return strconv.FormatFloat(value, 'f', 3, 64)
}
