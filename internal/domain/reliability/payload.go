package reliability

import (
	"encoding/json"

	"reliaudit/internal/domain/checksum"
	"reliaudit/internal/errs"
)

// Hashed payload keys. Changing this set invalidates every issued checksum.
const (
	keyModel           = "model"
	keyForeignKey      = "foreign_key"
	keyFromTotalScore  = "from_total_score"
	keyToTotalScore    = "to_total_score"
	keyFromFieldScores = "from_field_scores_json"
	keyToFieldScores   = "to_field_scores_json"
	keySource          = "source"
	keyActorUserID     = "actor_user_id"
	keyActorService    = "actor_service"
	keyCreated         = "created"
)

// CanonicalPayload rebuilds the integrity-bearing field set from stored values.
// ID and Message are metadata and never hashed.
func (e LogEntry) CanonicalPayload() (map[string]any, error) {
	var fromTotal any
	if e.FromTotalScore != nil {
		fromTotal = FormatScore(*e.FromTotalScore)
	}

	var fromFields any
	if e.FromFieldScoresJSON != nil && *e.FromFieldScoresJSON != "" {
		decoded, err := checksum.DecodeJSON(*e.FromFieldScoresJSON)
		if err != nil {
			return nil, &errs.EncodingError{Field: keyFromFieldScores, Err: err}
		}
		fromFields = decoded
	}

	toFields, err := checksum.DecodeJSON(e.ToFieldScoresJSON)
	if err != nil {
		return nil, &errs.EncodingError{Field: keyToFieldScores, Err: err}
	}

	return map[string]any{
		keyModel:           e.Model,
		keyForeignKey:      e.ForeignKey,
		keyFromTotalScore:  fromTotal,
		keyToTotalScore:    FormatScore(e.ToTotalScore),
		keyFromFieldScores: fromFields,
		keyToFieldScores:   toFields,
		keySource:          string(e.Source),
		keyActorUserID:     optionalString(e.ActorUserID),
		keyActorService:    optionalString(e.ActorService),
		keyCreated:         checksum.FormatTime(e.Created),
	}, nil
}

// ComputeChecksum digests the canonical payload.
func (e LogEntry) ComputeChecksum() (string, error) {
	payload, err := e.CanonicalPayload()
	if err != nil {
		return "", err
	}
	return checksum.DigestPayload(payload)
}

// EncodeFieldScores renders a field score snapshot as stored JSON text.
// A nil map encodes as absent.
func EncodeFieldScores(field string, scores map[string]any) (*string, error) {
	if scores == nil {
		return nil, nil
	}
	raw, err := checksum.EncodeJSON(scores)
	if err != nil {
		return nil, &errs.EncodingError{Field: field, Err: err}
	}
	text := string(raw)
	return &text, nil
}

// DecodeFieldScores parses stored field score JSON back into a map.
func DecodeFieldScores(raw string) (map[string]any, error) {
	out := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, &errs.EncodingError{Err: err}
	}
	return out, nil
}

func optionalString(value *string) any {
	if value == nil || *value == "" {
		return nil
	}
	return *value
}
