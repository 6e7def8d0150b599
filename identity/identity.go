package identity

import (
	"io"

	"github.com/google/uuid"
)

// NewID generates a new identifier for a stored record.
func NewID() string {
	return uuid.NewString()
}

// Valid reports whether id has the shape of an identifier.
func Valid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// SetRand sets the source of randomness. A nil reader restores the
// default. It is meant for tests that need repeatable identifiers.
func SetRand(r io.Reader) {
	uuid.SetRand(r)
}
