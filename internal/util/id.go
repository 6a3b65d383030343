// Package util holds small internal helpers not committed to as public API.
package util

import "github.com/google/uuid"

// NewID returns a random unique identifier.
func NewID() string {
	return uuid.NewString()
}
