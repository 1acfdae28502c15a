package checksum

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"reliaudit/internal/errs"
)

func TestCanonicalizeSortsKeysAtEveryDepth(t *testing.T) {
	a := map[string]any{
		"b": 1,
		"a": map[string]any{"z": "x", "y": []any{map[string]any{"d": 1, "c": 2}}},
	}
	b := map[string]any{
		"a": map[string]any{"y": []any{map[string]any{"c": 2, "d": 1}}, "z": "x"},
		"b": 1,
	}

	left, err := Canonicalize(a)
	if err != nil {
		t.Fatalf("Canonicalize(a) error = %v", err)
	}
	right, err := Canonicalize(b)
	if err != nil {
		t.Fatalf("Canonicalize(b) error = %v", err)
	}
	if string(left) != string(right) {
		t.Fatalf("canonical forms differ:\n%s\n%s", left, right)
	}
	want := `{"a":{"y":[{"c":2,"d":1}],"z":"x"},"b":1}`
	if string(left) != want {
		t.Fatalf("Canonicalize() = %s, want %s", left, want)
	}
}

func TestCanonicalizeKeepsSlashesAndUnicode(t *testing.T) {
	out, err := Canonicalize(map[string]any{"service": "openai:gpt/4o <mini>", "note": "café ✓"})
	if err != nil {
		t.Fatalf("Canonicalize() error = %v", err)
	}
	want := `{"note":"café ✓","service":"openai:gpt/4o <mini>"}`
	if string(out) != want {
		t.Fatalf("Canonicalize() = %s, want %s", out, want)
	}
}

func TestCanonicalizeDecodesRawJSON(t *testing.T) {
	compact, err := Canonicalize(map[string]any{"scores": json.RawMessage(`{"title":0.5,"body":1}`)})
	if err != nil {
		t.Fatalf("Canonicalize(compact) error = %v", err)
	}
	spaced, err := Canonicalize(map[string]any{"scores": json.RawMessage("{\n  \"body\": 1,\n  \"title\": 0.5\n}")})
	if err != nil {
		t.Fatalf("Canonicalize(spaced) error = %v", err)
	}
	if string(compact) != string(spaced) {
		t.Fatalf("raw JSON formatting leaked into canonical form: %s vs %s", compact, spaced)
	}
}

func TestCanonicalizeRejectsUnencodableValues(t *testing.T) {
	testCases := []struct {
		name    string
		payload map[string]any
	}{
		{name: "nan", payload: map[string]any{"score": math.NaN()}},
		{name: "bad raw json", payload: map[string]any{"scores": json.RawMessage(`{"title":`)}},
		{name: "channel", payload: map[string]any{"ch": make(chan int)}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := Canonicalize(testCase.payload)
			if !errors.Is(err, errs.ErrEncoding) {
				t.Fatalf("Canonicalize() error = %v, want ErrEncoding", err)
			}
		})
	}
}

func TestDigestIsLowercaseSHA256(t *testing.T) {
	got := Digest([]byte("abc"))
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Fatalf("Digest() = %s, want %s", got, want)
	}
	if !IsHexDigest(got) {
		t.Fatalf("IsHexDigest(%q) = false", got)
	}
	if IsHexDigest(strings.ToUpper(got)) {
		t.Fatalf("IsHexDigest accepted uppercase")
	}
}

func TestVerifyUsesExactComparison(t *testing.T) {
	payload := map[string]any{"model": "Products", "to_total_score": "0.42"}
	digest, err := DigestPayload(payload)
	if err != nil {
		t.Fatalf("DigestPayload() error = %v", err)
	}

	ok, err := Verify(map[string]any{"to_total_score": "0.42", "model": "Products"}, digest)
	if err != nil || !ok {
		t.Fatalf("Verify() = %v, %v; want true", ok, err)
	}
	ok, err = Verify(payload, strings.ToUpper(digest))
	if err != nil || ok {
		t.Fatalf("Verify(uppercase) = %v, %v; want false", ok, err)
	}
}

func TestDecodeJSONPreservesNumberText(t *testing.T) {
	value, err := DecodeJSON(`{"title":0.50}`)
	if err != nil {
		t.Fatalf("DecodeJSON() error = %v", err)
	}
	out, err := Canonicalize(map[string]any{"v": value})
	if err != nil {
		t.Fatalf("Canonicalize() error = %v", err)
	}
	if string(out) != `{"v":{"title":0.50}}` {
		t.Fatalf("Canonicalize() = %s", out)
	}

	for _, raw := range []string{`{"a":1} {"b":2}`, `{"a":1}]`, `{"a":1}}`, `[1],`, `1 x`} {
		if _, err := DecodeJSON(raw); err == nil {
			t.Fatalf("DecodeJSON(%q) expected trailing data error", raw)
		}
	}
	if _, err := DecodeJSON("{\"a\":1} \n\t"); err != nil {
		t.Fatalf("DecodeJSON() rejected trailing whitespace: %v", err)
	}
}

func TestFormatTimeIsUTCSeconds(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)
	got := FormatTime(time.Date(2026, 10, 14, 12, 30, 45, 999_000_000, loc))
	if got != "2026-10-14T10:30:45Z" {
		t.Fatalf("FormatTime() = %s", got)
	}
}
