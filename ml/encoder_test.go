package ml

import (
	"encoding/json"
	"testing"
)

func TestLabelEncoderSortedCodes(t *testing.T) {
	enc, err := NewLabelEncoder([]string{"Obese", "Normal Weight", "Underweight", "Overweight", "Obese"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"Normal Weight", "Obese", "Overweight", "Underweight"}
	if enc.Len() != len(want) {
		t.Fatalf("expected %d classes, got %d", len(want), enc.Len())
	}
	for code, class := range want {
		got, err := enc.Encode(class)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != code {
			t.Fatalf("%s: expected code %d, got %d", class, code, got)
		}
		back, err := enc.Decode(got)
		if err != nil || back != class {
			t.Fatalf("decode(%d) = %q, %v", got, back, err)
		}
	}
}

func TestLabelEncoderTransform(t *testing.T) {
	enc, err := NewLabelEncoder([]string{"Male", "Female"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	codes, err := enc.Transform([]string{"Male", "Female", "Male"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if codes[0] != 1 || codes[1] != 0 || codes[2] != 1 {
		t.Fatalf("unexpected codes %v", codes)
	}
	if _, err := enc.Transform([]string{"Male", "Other"}); !isErr(err, ErrEncoding) {
		t.Fatalf("expected encoding error, got %v", err)
	}
}

func TestLabelEncoderErrors(t *testing.T) {
	tests := []struct {
		name   string
		column []string
		target error
	}{
		{"empty category", []string{"Male", ""}, ErrEncoding},
		{"whitespace category", []string{"  ", "Female"}, ErrEncoding},
		{"no rows", nil, ErrDegenerateInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLabelEncoder(tt.column); !isErr(err, tt.target) {
				t.Fatalf("expected %v, got %v", tt.target, err)
			}
		})
	}

	enc, _ := NewLabelEncoder([]string{"a"})
	if _, err := enc.Decode(3); !isErr(err, ErrEncoding) {
		t.Fatalf("expected encoding error for unknown code, got %v", err)
	}
	if _, err := enc.Encode("b"); !isErr(err, ErrEncoding) {
		t.Fatalf("expected encoding error for unknown category, got %v", err)
	}
}

func TestLabelEncoderJSON(t *testing.T) {
	enc, _ := NewLabelEncoder([]string{"b", "a", "c"})
	payload, err := json.Marshal(enc)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(payload) != `["a","b","c"]` {
		t.Fatalf("unexpected payload %s", payload)
	}
	var restored LabelEncoder
	if err := json.Unmarshal(payload, &restored); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if code, _ := restored.Encode("c"); code != 2 {
		t.Fatalf("expected code 2, got %d", code)
	}
	if err := json.Unmarshal([]byte(`["b","a"]`), &restored); !isErr(err, ErrEncoding) {
		t.Fatalf("expected unsorted classes to be rejected, got %v", err)
	}
}
