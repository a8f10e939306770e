package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"regexp"
)

const idBytes = 20

var idPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// NewID returns a random identifier of 40 lowercase hex characters.
func NewID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Join(ErrInvalidIdentifier, err)
	}
	return hex.EncodeToString(b), nil
}

// ValidID reports whether id has the shape produced by NewID.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}
