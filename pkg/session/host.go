package session

// Host is what the surrounding environment exposes to the store: the
// identifier it already knows about and a way to forget it on the client.
type Host interface {
	// AmbientID returns the host's current session identifier or "".
	AmbientID() string

	// ClearTransport removes client-side session state, e.g. expires the cookie.
	ClearTransport() error
}

// StaticHost is a Host with a fixed ambient identifier and nothing to clear.
type StaticHost string

// AmbientID returns the identifier itself.
func (h StaticHost) AmbientID() string { return string(h) }

// ClearTransport does nothing.
func (StaticHost) ClearTransport() error { return nil }
