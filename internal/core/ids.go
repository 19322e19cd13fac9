package core

import "github.com/google/uuid"

// NewID returns a fresh random identifier, matching the teacher framework's
// use of google/uuid for every entity ID in the system.
func NewID() string {
	return uuid.NewString()
}
