package providers

import (
	"encoding/json"
	"testing"
)

func TestParseStructuredJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "plain json",
			input: `{"questions":[]}`,
			want:  `{"questions":[]}`,
		},
		{
			name:  "code fenced",
			input: "```json\n{\"questions\":[]}\n```",
			want:  `{"questions":[]}`,
		},
		{
			name:  "surrounding prose",
			input: "Here is the extraction:\n{\"questions\":[]}\nDone.",
			want:  `{"questions":[]}`,
		},
		{
			name:  "array payload",
			input: "[1,2,3]",
			want:  `[1,2,3]`,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
		{
			name:    "no json at all",
			input:   "I could not read the page.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseStructuredJSON(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("parseStructuredJSON = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValidateStructuredJSON(t *testing.T) {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"questions": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"question_number": {"type": "integer"}
					},
					"required": ["question_number"]
				}
			}
		},
		"required": ["questions"]
	}`)

	valid := json.RawMessage(`{"questions":[{"question_number":1}]}`)
	if err := validateStructuredJSON(schema, valid); err != nil {
		t.Errorf("valid document rejected: %v", err)
	}

	invalid := json.RawMessage(`{"questions":[{"question_number":"one"}]}`)
	if err := validateStructuredJSON(schema, invalid); err == nil {
		t.Error("invalid document accepted")
	}

	missing := json.RawMessage(`{}`)
	if err := validateStructuredJSON(schema, missing); err == nil {
		t.Error("document missing required field accepted")
	}

	// No schema means no validation.
	if err := validateStructuredJSON(nil, valid); err != nil {
		t.Errorf("nil schema should skip validation: %v", err)
	}
}

func TestStripCodeFences(t *testing.T) {
	if got := stripCodeFences("no fences"); got != "" {
		t.Errorf("expected empty for unfenced input, got %q", got)
	}
	if got := stripCodeFences("```json\n{\"a\":1}\n```"); got != `{"a":1}` {
		t.Errorf("stripCodeFences = %q", got)
	}
}
