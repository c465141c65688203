package api

import (
	"bytes"
	"strings"
	"testing"
)

func TestOutputTo(t *testing.T) {
	data := map[string]any{"status": "completed", "pages": 12}

	tests := []struct {
		name    string
		format  OutputFormat
		wantSub string
		wantErr bool
	}{
		{name: "yaml", format: OutputFormatYAML, wantSub: "status: completed"},
		{name: "json", format: OutputFormatJSON, wantSub: `"status": "completed"`},
		{name: "unknown format", format: OutputFormat("xml"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := OutputTo(&buf, tt.format, data)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("OutputTo failed: %v", err)
			}
			if !strings.Contains(buf.String(), tt.wantSub) {
				t.Errorf("output = %q, want substring %q", buf.String(), tt.wantSub)
			}
		})
	}
}

func TestSetOutputFormat(t *testing.T) {
	t.Cleanup(func() { SetOutputFormat("yaml") })

	SetOutputFormat("json")
	if got := GetOutputFormat(); got != OutputFormatJSON {
		t.Errorf("format = %q, want json", got)
	}

	// Unrecognized values fall back to YAML.
	SetOutputFormat("csv")
	if got := GetOutputFormat(); got != OutputFormatYAML {
		t.Errorf("format = %q, want yaml", got)
	}
}
