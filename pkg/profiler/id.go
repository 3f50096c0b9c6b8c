package profiler

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	idAlphabet = "0123456789abcdef"
	// 32 hex characters carry 128 bits
	idLength = 32
)

// NewID returns a fixed-width, lowercase hex token drawn from crypto/rand.
func NewID() string {
	return gonanoid.MustGenerate(idAlphabet, idLength)
}
