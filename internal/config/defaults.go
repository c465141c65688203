package config

import "fmt"

// Config is the root configuration for pyqvault.
type Config struct {
	Server     ServerConfig              `mapstructure:"server" yaml:"server"`
	Database   DatabaseConfig            `mapstructure:"database" yaml:"database"`
	Providers  map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
	Extraction ExtractionConfig          `mapstructure:"extraction" yaml:"extraction"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string   `mapstructure:"host" yaml:"host"`
	Port        int      `mapstructure:"port" yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Name     string `mapstructure:"name" yaml:"name"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// ProviderConfig holds settings for a single vision model provider.
type ProviderConfig struct {
	Type            string `mapstructure:"type" yaml:"type"`
	Model           string `mapstructure:"model" yaml:"model"`
	APIKey          string `mapstructure:"api_key" yaml:"api_key"`
	RateLimitPerMin int    `mapstructure:"rate_limit_per_min" yaml:"rate_limit_per_min"`
	MaxRetries      int    `mapstructure:"max_retries" yaml:"max_retries"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`
}

// SectionLayout describes one section of a full-length paper: which subject
// it covers and how many questions it is expected to contain. Sections are
// listed in paper order; page ranges are derived from the book's page count.
type SectionLayout struct {
	Subject           string `mapstructure:"subject" yaml:"subject"`
	ExpectedQuestions int    `mapstructure:"expected_questions" yaml:"expected_questions"`
}

// ExtractionConfig holds pipeline tuning knobs.
type ExtractionConfig struct {
	// VisionProvider names the providers entry used for page extraction.
	VisionProvider string `mapstructure:"vision_provider" yaml:"vision_provider"`
	// MetadataProvider names the providers entry used for metadata detection.
	MetadataProvider string `mapstructure:"metadata_provider" yaml:"metadata_provider"`

	PageConcurrency int `mapstructure:"page_concurrency" yaml:"page_concurrency"`
	RenderDPI       int `mapstructure:"render_dpi" yaml:"render_dpi"`
	Workers         int `mapstructure:"workers" yaml:"workers"`
	QueueSize       int `mapstructure:"queue_size" yaml:"queue_size"`
	MaxPageAttempts int `mapstructure:"max_page_attempts" yaml:"max_page_attempts"`

	// RetryCostPerPageUSD and RetrySecondsPerPage feed retry estimates.
	RetryCostPerPageUSD float64 `mapstructure:"retry_cost_per_page_usd" yaml:"retry_cost_per_page_usd"`
	RetrySecondsPerPage int     `mapstructure:"retry_seconds_per_page" yaml:"retry_seconds_per_page"`

	// DefaultSectionQuestions is the expected question count for a
	// subject-wise book with no explicit expectation.
	DefaultSectionQuestions int `mapstructure:"default_section_questions" yaml:"default_section_questions"`

	// SectionLayouts maps a lowercased exam name to its section order for
	// full-length papers.
	SectionLayouts map[string][]SectionLayout `mapstructure:"section_layouts" yaml:"section_layouts"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "${PYQVAULT_DB_PASSWORD}",
			Name:     "pyqvault",
			SSLMode:  "disable",
		},
		Providers: map[string]ProviderConfig{
			"openai": {
				Type:            "openai",
				Model:           "gpt-4o",
				APIKey:          "${OPENAI_API_KEY}",
				RateLimitPerMin: 60,
				MaxRetries:      3,
				TimeoutSeconds:  120,
				Enabled:         true,
			},
			"anthropic": {
				Type:            "anthropic",
				Model:           "claude-sonnet-4-20250514",
				APIKey:          "${ANTHROPIC_API_KEY}",
				RateLimitPerMin: 50,
				MaxRetries:      3,
				TimeoutSeconds:  120,
				Enabled:         true,
			},
		},
		Extraction: ExtractionConfig{
			VisionProvider:          "openai",
			MetadataProvider:        "openai",
			PageConcurrency:         4,
			RenderDPI:               300,
			Workers:                 2,
			QueueSize:               32,
			MaxPageAttempts:         3,
			RetryCostPerPageUSD:     0.10,
			RetrySecondsPerPage:     30,
			DefaultSectionQuestions: 45,
			SectionLayouts: map[string][]SectionLayout{
				"neet": {
					{Subject: "Physics", ExpectedQuestions: 45},
					{Subject: "Chemistry", ExpectedQuestions: 45},
					{Subject: "Biology", ExpectedQuestions: 90},
				},
				"jee main": {
					{Subject: "Physics", ExpectedQuestions: 30},
					{Subject: "Chemistry", ExpectedQuestions: 30},
					{Subject: "Mathematics", ExpectedQuestions: 30},
				},
			},
		},
	}
}

// Provider returns the named provider config with API key env references
// resolved, and whether it exists.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	pc, ok := c.Providers[name]
	if !ok {
		return ProviderConfig{}, false
	}
	pc.APIKey = ResolveEnvVars(pc.APIKey)
	return pc, true
}

// DSN builds a lib/pq connection string with env references resolved.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, ResolveEnvVars(d.Password), d.Name, d.SSLMode)
}
