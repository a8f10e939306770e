package session

import (
	"net/http"
	"strings"
)

// HeaderTransport implements Transport using HTTP headers, for API clients
// that do not keep cookies
type HeaderTransport struct {
	headerName string
	prefix     string
}

// HeaderOption is a functional option for HeaderTransport
type HeaderOption func(*HeaderTransport)

// WithHeaderPrefix sets a custom prefix for the header value
func WithHeaderPrefix(prefix string) HeaderOption {
	return func(t *HeaderTransport) {
		t.prefix = prefix
	}
}

// NewHeaderTransport creates a new header-based transport
func NewHeaderTransport(headerName string, opts ...HeaderOption) *HeaderTransport {
	t := &HeaderTransport{headerName: headerName}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// GetID extracts the session identifier from the request header
func (t *HeaderTransport) GetID(r *http.Request) (string, error) {
	value := r.Header.Get(t.headerName)
	if t.prefix != "" {
		value = strings.TrimPrefix(value, t.prefix)
	}
	if value == "" {
		return "", ErrInvalidIdentifier
	}
	return value, nil
}

// SetID sends the session identifier in the response header
func (t *HeaderTransport) SetID(w http.ResponseWriter, id string) error {
	w.Header().Set(t.headerName, t.prefix+id)
	return nil
}

// ClearID removes the session header from the response
func (t *HeaderTransport) ClearID(w http.ResponseWriter) error {
	w.Header().Del(t.headerName)
	return nil
}
