package filebackend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrame(t *testing.T) {
	sentinel := []byte(DefaultSentinel)

	framed := frame(sentinel, []byte("a|s:1:\"x\";"))
	assert.Equal(t, DefaultSentinel+"a|s:1:\"x\";", string(framed))
	assert.Equal(t, []byte("a|s:1:\"x\";"), unframe(sentinel, framed))

	t.Run("missing sentinel is kept", func(t *testing.T) {
		assert.Equal(t, []byte("short"), unframe(sentinel, []byte("short")))
	})

	t.Run("empty payload", func(t *testing.T) {
		assert.Empty(t, unframe(sentinel, frame(sentinel, nil)))
	})

	t.Run("framing disabled", func(t *testing.T) {
		assert.Equal(t, []byte("raw"), unframe(nil, frame(nil, []byte("raw"))))
	})
}
