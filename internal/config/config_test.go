package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Database.Name != "pyqvault" {
		t.Errorf("expected default dbname pyqvault, got %s", cfg.Database.Name)
	}
	if _, ok := cfg.Providers["openai"]; !ok {
		t.Error("expected openai provider in defaults")
	}
	if _, ok := cfg.Providers["anthropic"]; !ok {
		t.Error("expected anthropic provider in defaults")
	}
	if cfg.Extraction.MaxPageAttempts != 3 {
		t.Errorf("expected 3 max page attempts, got %d", cfg.Extraction.MaxPageAttempts)
	}
	if cfg.Extraction.RetryCostPerPageUSD != 0.10 {
		t.Errorf("expected 0.10 retry cost per page, got %f", cfg.Extraction.RetryCostPerPageUSD)
	}

	neet, ok := cfg.Extraction.SectionLayouts["neet"]
	if !ok {
		t.Fatal("expected neet section layout in defaults")
	}
	total := 0
	for _, s := range neet {
		total += s.ExpectedQuestions
	}
	if total != 180 {
		t.Errorf("expected neet layout to total 180 questions, got %d", total)
	}
}

func TestResolveEnvVars(t *testing.T) {
	os.Setenv("TEST_PYQVAULT_KEY", "secret-123")
	defer os.Unsetenv("TEST_PYQVAULT_KEY")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple substitution", "${TEST_PYQVAULT_KEY}", "secret-123"},
		{"embedded substitution", "key=${TEST_PYQVAULT_KEY}!", "key=secret-123!"},
		{"no substitution", "plain-value", "plain-value"},
		{"missing variable", "${PYQVAULT_DOES_NOT_EXIST}", ""},
		{"empty string", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveEnvVars(tt.input); got != tt.expected {
				t.Errorf("ResolveEnvVars(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestProviderResolvesAPIKey(t *testing.T) {
	os.Setenv("TEST_PYQVAULT_API_KEY", "sk-test")
	defer os.Unsetenv("TEST_PYQVAULT_API_KEY")

	cfg := DefaultConfig()
	cfg.Providers["custom"] = ProviderConfig{
		Type:   "openai",
		Model:  "gpt-4o",
		APIKey: "${TEST_PYQVAULT_API_KEY}",
	}

	pc, ok := cfg.Provider("custom")
	if !ok {
		t.Fatal("expected custom provider to exist")
	}
	if pc.APIKey != "sk-test" {
		t.Errorf("expected resolved api key sk-test, got %q", pc.APIKey)
	}

	if _, ok := cfg.Provider("nope"); ok {
		t.Error("expected missing provider lookup to fail")
	}
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{
		Host:     "db.example.com",
		Port:     5433,
		User:     "app",
		Password: "pw",
		Name:     "exams",
		SSLMode:  "require",
	}
	want := "host=db.example.com port=5433 user=app password=pw dbname=exams sslmode=require"
	if got := db.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestWriteDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	content := string(data)
	if len(content) == 0 {
		t.Fatal("written config is empty")
	}
	for _, want := range []string{"providers", "database", "extraction", "${OPENAI_API_KEY}"} {
		if !strings.Contains(content, want) {
			t.Errorf("written config missing %q", want)
		}
	}
}
