package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Error classifications recorded alongside failed calls.
const (
	ErrTypeTransient = "transient"
	ErrTypePermanent = "permanent"
)

// APIError is a provider API failure with its HTTP status.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsTransientStatus reports whether an HTTP status is worth retrying.
func IsTransientStatus(code int) bool {
	switch {
	case code == 408, code == 429:
		return true
	case code >= 500 && code <= 599:
		return true
	}
	return false
}

// IsTransient reports whether an error is likely to succeed on retry:
// timeouts, rate limits, server errors and network failures. Anything
// else (auth errors, invalid requests, unparseable output) is permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// Cancellation is not retryable; the caller gave up.
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return IsTransientStatus(apiErr.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection reset",
		"connection refused",
		"broken pipe",
		"no such host",
		"i/o timeout",
		"tls handshake timeout",
		"unexpected eof",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Classify maps an error to its ledger error type.
func Classify(err error) string {
	if IsTransient(err) {
		return ErrTypeTransient
	}
	return ErrTypePermanent
}
