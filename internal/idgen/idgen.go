package idgen

import (
	"github.com/google/uuid"
)

// New generates a generic UUID (request IDs)
func New() string {
	return uuid.New().String()
}

// NewState generates an opaque state value for OAuth authorize redirects
func NewState() string {
	return uuid.New().String()
}
