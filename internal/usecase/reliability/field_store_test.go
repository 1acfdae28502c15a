package reliability

import (
	"context"
	"testing"
)

func TestUpsertFieldRangeBoundaries(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		input   UpsertFieldInput
		invalid string
	}{
		{name: "zero", input: UpsertFieldInput{Model: "Articles", ForeignKey: entityA, Field: "title"}},
		{name: "one", input: UpsertFieldInput{Model: "Articles", ForeignKey: entityA, Field: "body", Score: 1, Weight: 1, MaxScore: 1}},
		{name: "score above", input: UpsertFieldInput{Model: "Articles", ForeignKey: entityA, Field: "title", Score: 1.01}, invalid: "score"},
		{name: "weight below", input: UpsertFieldInput{Model: "Articles", ForeignKey: entityA, Field: "title", Weight: -0.001}, invalid: "weight"},
		{name: "max above", input: UpsertFieldInput{Model: "Articles", ForeignKey: entityA, Field: "title", MaxScore: 2}, invalid: "max_score"},
		{name: "bad model", input: UpsertFieldInput{Model: "1Articles", ForeignKey: entityA, Field: "title"}, invalid: "model"},
		{name: "bad field", input: UpsertFieldInput{Model: "Articles", ForeignKey: entityA, Field: "Title"}, invalid: "field"},
		{name: "bad id", input: UpsertFieldInput{Model: "Articles", ForeignKey: "42", Field: "title"}, invalid: "foreign_key"},
		{name: "long notes", input: UpsertFieldInput{Model: "Articles", ForeignKey: entityA, Field: "title", Notes: ptr(string(make([]byte, 256)))}, invalid: "notes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.UpsertField(ctx, tc.input)
			if tc.invalid == "" {
				if err != nil {
					t.Fatalf("UpsertField: %v", err)
				}
				return
			}
			expectValidation(t, err, tc.invalid)
		})
	}
}

func TestUpsertFieldAllowsScoreAboveMaxScore(t *testing.T) {
	svc, _ := setupService(t)
	if _, err := svc.UpsertField(context.Background(), UpsertFieldInput{
		Model: "Articles", ForeignKey: entityA, Field: "title", Score: 0.9, MaxScore: 0.5,
	}); err != nil {
		t.Fatalf("score above max_score must be accepted: %v", err)
	}
}

func TestGetFieldsAndBatch(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	for _, in := range []UpsertFieldInput{
		{Model: "Articles", ForeignKey: entityA, Field: "title", Score: 0.8, Weight: 0.5, MaxScore: 1},
		{Model: "Articles", ForeignKey: entityA, Field: "body", Score: 0.4, Weight: 0.5, MaxScore: 1},
		{Model: "Articles", ForeignKey: entityB, Field: "title", Score: 0.2, Weight: 0.5, MaxScore: 1},
	} {
		if _, err := svc.UpsertField(ctx, in); err != nil {
			t.Fatalf("UpsertField: %v", err)
		}
	}

	fields, err := svc.GetFields(ctx, "Articles", entityA)
	if err != nil {
		t.Fatalf("GetFields: %v", err)
	}
	if len(fields) != 2 || fields["title"].Score != 0.8 || fields["body"].Score != 0.4 {
		t.Fatalf("unexpected fields: %+v", fields)
	}

	none, err := svc.GetFields(ctx, "Articles", "8b3e4d1a-3c9f-4d66-8e4a-8dab2e9f7a33")
	if err != nil || len(none) != 0 {
		t.Fatalf("GetFields(unknown) = %v, %v", none, err)
	}

	batch, err := svc.GetFieldsForMany(ctx, "Articles", []string{entityA, entityB, entityA})
	if err != nil {
		t.Fatalf("GetFieldsForMany: %v", err)
	}
	if len(batch) != 2 || len(batch[entityB]) != 1 {
		t.Fatalf("unexpected batch: %+v", batch)
	}

	empty, err := svc.GetFieldsForMany(ctx, "Articles", nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("GetFieldsForMany(nil) = %v, %v", empty, err)
	}
}

func TestGetFieldsRejectsInvalidModel(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	if _, err := svc.GetFields(ctx, "", entityA); err == nil {
		t.Fatalf("expected GetFields to reject an empty model")
	} else {
		expectValidation(t, err, "model")
	}
	for _, ids := range [][]string{nil, {entityA}} {
		_, err := svc.GetFieldsForMany(ctx, "bad model!", ids)
		expectValidation(t, err, "model")
	}
}

func TestStatsAndRankings(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	for _, in := range []UpsertFieldInput{
		{Model: "Products", ForeignKey: entityA, Field: "title", Score: 0.9, Weight: 0.4, MaxScore: 1},
		{Model: "Products", ForeignKey: entityB, Field: "title", Score: 0.6, Weight: 0.4, MaxScore: 1},
		{Model: "Products", ForeignKey: entityA, Field: "description", Score: 0, Weight: 0.35, MaxScore: 1},
		{Model: "Products", ForeignKey: entityB, Field: "description", Score: 0.33, Weight: 0.35, MaxScore: 1},
	} {
		if _, err := svc.UpsertField(ctx, in); err != nil {
			t.Fatalf("UpsertField: %v", err)
		}
	}

	stats, err := svc.Stats(ctx, "Products", "")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	title := stats["title"]
	if title.Count != 2 || title.AvgScore != 0.75 || title.MinScore != 0.6 || title.MaxScore != 0.9 || title.AvgWeight != 0.4 {
		t.Fatalf("unexpected title stats: %+v", title)
	}
	if stats["description"].AvgScore != 0.165 {
		t.Fatalf("avg score should round to 3 decimals: %+v", stats["description"])
	}

	low, err := svc.FindLowScoring(ctx, "Products", "description", -1)
	if err != nil {
		t.Fatalf("FindLowScoring: %v", err)
	}
	if len(low) != 2 || low[0].Score != 0 {
		t.Fatalf("unexpected low scoring: %+v", low)
	}

	missing, err := svc.FindMissing(ctx, "Products", "description")
	if err != nil {
		t.Fatalf("FindMissing: %v", err)
	}
	if len(missing) != 1 || missing[0].ForeignKey != entityA {
		t.Fatalf("unexpected missing: %+v", missing)
	}

	top, err := svc.TopPerformingFields(ctx, "Products", 0)
	if err != nil {
		t.Fatalf("TopPerformingFields: %v", err)
	}
	if len(top) != 2 || top[0].Field != "title" || top[0].Value != 0.75 {
		t.Fatalf("unexpected top fields: %+v", top)
	}

	weights, err := svc.FieldWeights(ctx, "Products")
	if err != nil {
		t.Fatalf("FieldWeights: %v", err)
	}
	if weights[0].Field != "title" || weights[1].Value != 0.35 {
		t.Fatalf("unexpected weights: %+v", weights)
	}

	if _, err := svc.Stats(ctx, "bad-model", ""); err == nil {
		t.Fatalf("Stats should reject a malformed model")
	}
}
