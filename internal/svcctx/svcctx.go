// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/pyqvault/pyqvault/internal/blob"
	"github.com/pyqvault/pyqvault/internal/config"
	"github.com/pyqvault/pyqvault/internal/costs"
	"github.com/pyqvault/pyqvault/internal/extract"
	"github.com/pyqvault/pyqvault/internal/home"
	"github.com/pyqvault/pyqvault/internal/jobs"
	"github.com/pyqvault/pyqvault/internal/providers"
	"github.com/pyqvault/pyqvault/internal/store"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Store        *store.Store
	Blobs        blob.Store
	Registry     *providers.Registry
	Costs        *costs.Recorder
	Pool         *jobs.Pool
	Orchestrator *extract.Orchestrator
	Detector     *extract.Detector
	Inferencer   *extract.Inferencer
	Advisor      *extract.Advisor
	Reporter     *extract.Reporter
	Config       *config.Manager
	Logger       *slog.Logger
	Home         *home.Dir
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// StoreFrom extracts the database store from context.
func StoreFrom(ctx context.Context) *store.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// BlobsFrom extracts the blob store from context.
func BlobsFrom(ctx context.Context) blob.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Blobs
	}
	return nil
}

// RegistryFrom extracts the provider registry from context.
func RegistryFrom(ctx context.Context) *providers.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Registry
	}
	return nil
}

// CostsFrom extracts the cost recorder from context.
func CostsFrom(ctx context.Context) *costs.Recorder {
	if s := ServicesFrom(ctx); s != nil {
		return s.Costs
	}
	return nil
}

// PoolFrom extracts the job pool from context.
func PoolFrom(ctx context.Context) *jobs.Pool {
	if s := ServicesFrom(ctx); s != nil {
		return s.Pool
	}
	return nil
}

// OrchestratorFrom extracts the extraction orchestrator from context.
func OrchestratorFrom(ctx context.Context) *extract.Orchestrator {
	if s := ServicesFrom(ctx); s != nil {
		return s.Orchestrator
	}
	return nil
}

// DetectorFrom extracts the duplicate detector from context.
func DetectorFrom(ctx context.Context) *extract.Detector {
	if s := ServicesFrom(ctx); s != nil {
		return s.Detector
	}
	return nil
}

// InferencerFrom extracts the metadata inferencer from context.
func InferencerFrom(ctx context.Context) *extract.Inferencer {
	if s := ServicesFrom(ctx); s != nil {
		return s.Inferencer
	}
	return nil
}

// AdvisorFrom extracts the retry advisor from context.
func AdvisorFrom(ctx context.Context) *extract.Advisor {
	if s := ServicesFrom(ctx); s != nil {
		return s.Advisor
	}
	return nil
}

// ReporterFrom extracts the progress reporter from context.
func ReporterFrom(ctx context.Context) *extract.Reporter {
	if s := ServicesFrom(ctx); s != nil {
		return s.Reporter
	}
	return nil
}

// ConfigFrom extracts the config manager from context.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Config
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}
