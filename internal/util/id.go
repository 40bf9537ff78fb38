package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// NewID returns a short random hex id used for requests and queue jobs.
func NewID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// NewUUID returns a random UUID used as a primary key for stored rows.
func NewUUID() string {
	return uuid.NewString()
}

// IsUUID reports whether s parses as a UUID.
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// NewToken returns a URL-safe NanoID of the given length for one-time links.
func NewToken(length int) (string, error) {
	if length <= 0 {
		length = 32
	}
	return gonanoid.New(length)
}
