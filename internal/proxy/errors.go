package proxy

import (
	"errors"
	"net/http"
)

// ErrSymbolRequired rejects a request without a symbol. No cache lookup or
// upstream call happens for it.
var ErrSymbolRequired = errors.New("symbol required")

// UpstreamError means the provider could not be reached or its response
// could not be read. Its message is the underlying cause.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string { return e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

// ProviderError carries the message of an error object returned by the
// provider.
type ProviderError struct {
	Message string
}

const defaultProviderMessage = "provider error"

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return defaultProviderMessage
	}
	return e.Message
}

// StatusCode maps a HandleCandles error to the HTTP status returned to the
// client. Upstream and provider failures are both reported as 500.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrSymbolRequired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
