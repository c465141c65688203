package endpoints

import (
	"github.com/pyqvault/pyqvault/internal/api"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	SwaggerSpecPath string
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{},

		// Book endpoints
		&ListBooksEndpoint{},
		&GetBookEndpoint{},
		&DeleteBookEndpoint{},
		&UploadBookEndpoint{},
		&UpdateBookEndpoint{},
		&ReportEndpoint{},

		// Retry endpoints
		&RetryBookEndpoint{},
		&RetryPagesEndpoint{},
		&RetrySectionEndpoint{},
		&SmartRetryEndpoint{},
		&RetryEstimateEndpoint{},

		// Progress endpoints
		&ProgressEndpoint{},
		&ProgressStreamEndpoint{},

		// Result endpoints
		&ListPagesEndpoint{},
		&PageImageEndpoint{},
		&ListSectionsEndpoint{},
		&ListQuestionsEndpoint{},
		&BookCostsEndpoint{},

		// Swagger/OpenAPI endpoints
		&SwaggerEndpoint{SpecPath: cfg.SwaggerSpecPath},
		&SwaggerUIEndpoint{},
	}
}
