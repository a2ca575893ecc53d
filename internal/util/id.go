package util

import "github.com/google/uuid"

// NewID returns a random UUIDv4 string used as a primary key.
func NewID() string {
	return uuid.NewString()
}
