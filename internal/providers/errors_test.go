package providers

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsTransientStatus(t *testing.T) {
	tests := []struct {
		code     int
		expected bool
	}{
		{200, false},
		{400, false},
		{401, false},
		{404, false},
		{408, true},
		{422, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
	}

	for _, tt := range tests {
		if got := IsTransientStatus(tt.code); got != tt.expected {
			t.Errorf("IsTransientStatus(%d) = %v, want %v", tt.code, got, tt.expected)
		}
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
		{"rate limited", &APIError{Provider: "openai", StatusCode: 429}, true},
		{"server error", &APIError{Provider: "openai", StatusCode: 503}, true},
		{"auth failure", &APIError{Provider: "openai", StatusCode: 401}, false},
		{"bad request", &APIError{Provider: "anthropic", StatusCode: 400}, false},
		{"wrapped api error", fmt.Errorf("call failed: %w", &APIError{StatusCode: 500}), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"plain error", errors.New("invalid schema"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.expected {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	if got := Classify(&APIError{StatusCode: 429}); got != ErrTypeTransient {
		t.Errorf("Classify(429) = %q, want transient", got)
	}
	if got := Classify(errors.New("unparseable output")); got != ErrTypePermanent {
		t.Errorf("Classify(parse error) = %q, want permanent", got)
	}
}
