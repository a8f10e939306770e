package session

import (
	"errors"
	"net/http"
)

// CompositeTransport tries multiple transports in order
type CompositeTransport struct {
	transports []Transport
}

// NewCompositeTransport creates a composite transport that tries multiple transports
func NewCompositeTransport(transports ...Transport) *CompositeTransport {
	return &CompositeTransport{transports: transports}
}

// GetID returns the identifier from the first transport that has one
func (t *CompositeTransport) GetID(r *http.Request) (string, error) {
	for _, transport := range t.transports {
		id, err := transport.GetID(r)
		if err == nil && id != "" {
			return id, nil
		}
	}
	return "", ErrInvalidIdentifier
}

// SetID sends the identifier via all transports
func (t *CompositeTransport) SetID(w http.ResponseWriter, id string) error {
	var errs []error
	for _, transport := range t.transports {
		errs = append(errs, transport.SetID(w, id))
	}
	return errors.Join(errs...)
}

// ClearID clears the identifier on all transports
func (t *CompositeTransport) ClearID(w http.ResponseWriter) error {
	var errs []error
	for _, transport := range t.transports {
		errs = append(errs, transport.ClearID(w))
	}
	return errors.Join(errs...)
}
