package endpoints

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pyqvault/pyqvault/internal/jobs"
	"github.com/pyqvault/pyqvault/internal/providers"
	"github.com/pyqvault/pyqvault/internal/store"
	"github.com/pyqvault/pyqvault/internal/svcctx"
)

// serveAll builds a mux with every endpoint registered and the given
// services attached to each request.
func serveAll(t *testing.T, svcs *svcctx.Services) http.Handler {
	t.Helper()

	mux := http.NewServeMux()
	for _, ep := range All(Config{}) {
		method, path, handler := ep.Route()
		mux.HandleFunc(method+" "+path, handler)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if svcs != nil {
			r = r.WithContext(svcctx.WithServices(r.Context(), svcs))
		}
		mux.ServeHTTP(w, r)
	})
}

func TestAllRoutesRegister(t *testing.T) {
	// A duplicate pattern would panic inside ServeMux.
	serveAll(t, nil)
}

func TestEveryEndpointHasRoute(t *testing.T) {
	for _, ep := range All(Config{}) {
		method, path, handler := ep.Route()
		if method == "" || path == "" || handler == nil {
			t.Errorf("endpoint %T has incomplete route: %q %q", ep, method, path)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := serveAll(t, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
}

func TestReadyEndpointWithoutStore(t *testing.T) {
	h := serveAll(t, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Database != "not_initialized" {
		t.Errorf("database = %q, want not_initialized", resp.Database)
	}
}

func TestStatusEndpoint(t *testing.T) {
	pool := jobs.NewPool(1, 4, slog.Default())
	defer pool.Shutdown()

	svcs := &svcctx.Services{
		Registry: providers.NewRegistryWith(providers.NewMock("mockai")),
		Pool:     pool,
	}

	h := serveAll(t, svcs)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Server != "running" {
		t.Errorf("server = %q", resp.Server)
	}
	if len(resp.Providers) != 1 || resp.Providers[0] != "mockai" {
		t.Errorf("providers = %v, want [mockai]", resp.Providers)
	}
}

func TestUploadRejectsMissingFile(t *testing.T) {
	h := serveAll(t, &svcctx.Services{})
	req := httptest.NewRequest("POST", "/api/books/upload",
		strings.NewReader("--x--\r\n"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRetryableStatus(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{store.StatusCompleted, true},
		{store.StatusFailed, true},
		{store.StatusPending, false},
		{store.StatusProcessing, false},
		{"", false},
	}
	for _, tt := range tests {
		if got := retryableStatus(tt.status); got != tt.want {
			t.Errorf("retryableStatus(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestRetrySectionRequiresSubject(t *testing.T) {
	h := serveAll(t, nil)
	req := httptest.NewRequest("POST", "/api/books/b1/retry-section",
		strings.NewReader(`{}`))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	// The services check runs before body validation.
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 without services", rec.Code)
	}
}

func TestSwaggerUIServesHTML(t *testing.T) {
	h := serveAll(t, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/swagger", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html" {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "swagger-ui") {
		t.Error("expected swagger UI markup in response")
	}
}

func TestSwaggerSpecMissingIs404(t *testing.T) {
	ep := &SwaggerEndpoint{SpecPath: "/nonexistent/swagger.json"}
	_, _, handler := ep.Route()

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest("GET", "/swagger.json", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCommandsBuildWithoutConflicts(t *testing.T) {
	seen := map[string]bool{}
	for _, ep := range All(Config{}) {
		cmd := ep.Command(func() string { return "http://localhost:8080" })
		if cmd == nil {
			continue
		}
		name := cmd.Name()
		if seen[name] {
			t.Errorf("duplicate CLI command name %q from %T", name, ep)
		}
		seen[name] = true
	}
	if len(seen) == 0 {
		t.Error("expected at least one CLI command")
	}
}
