package session

// ResolveID picks the identifier an operation works on.
//
// An explicit argument wins, then the store's active identifier, then the
// identifier the host already knows about. An empty string counts as absent.
func ResolveID(arg, active string, host Host) (string, error) {
	if arg != "" {
		return arg, nil
	}
	if active != "" {
		return active, nil
	}
	if host != nil {
		if id := host.AmbientID(); id != "" {
			return id, nil
		}
	}
	return "", ErrInvalidIdentifier
}
