package session

import "net/http"

// Transport defines how session identifiers travel between client and server
type Transport interface {
	// GetID extracts the session identifier from the request
	GetID(r *http.Request) (string, error)

	// SetID sends the session identifier in the response
	SetID(w http.ResponseWriter, id string) error

	// ClearID removes the session identifier on the client
	ClearID(w http.ResponseWriter) error
}
