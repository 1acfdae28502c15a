package reliability

import (
	"errors"
	"testing"

	"reliaudit/internal/errs"
)

type sampleInput struct {
	Model  string  `json:"model" validate:"required,modelname"`
	Field  string  `json:"field" validate:"required,fieldname"`
	Score  float64 `json:"score" validate:"gte=0,lte=1"`
	Source Source  `json:"source" validate:"required,source"`
}

func TestValidateReportsFirstViolation(t *testing.T) {
	cases := []struct {
		name  string
		input sampleInput
		field string
	}{
		{name: "ok", input: sampleInput{Model: "Articles", Field: "title", Score: 1, Source: SourceAI}},
		{name: "missing model", input: sampleInput{Field: "title", Source: SourceAI}, field: "model"},
		{name: "dashed model", input: sampleInput{Model: "Bad-Name", Field: "title", Source: SourceAI}, field: "model"},
		{name: "camel field", input: sampleInput{Model: "Articles", Field: "Title", Source: SourceAI}, field: "field"},
		{name: "score range", input: sampleInput{Model: "Articles", Field: "title", Score: 1.01, Source: SourceAI}, field: "score"},
		{name: "bad source", input: sampleInput{Model: "Articles", Field: "title", Source: "robot"}, field: "source"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.input)
			if tc.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *errs.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if ve.Field != tc.field {
				t.Fatalf("field = %q, want %q", ve.Field, tc.field)
			}
			if !errors.Is(err, errs.ErrValidation) {
				t.Fatalf("expected ErrValidation kind")
			}
		})
	}
}

func TestNamePatterns(t *testing.T) {
	if !IsModelName("ProductsReliability") || IsModelName("Plugin.Articles") || IsModelName("VeryLongModelNameOver20") {
		t.Fatalf("model name handling wrong")
	}
	if !IsFieldName("meta_description2") || IsFieldName("2fast") {
		t.Fatalf("field name handling wrong")
	}
}
