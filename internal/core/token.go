package core

import "time"

// TokenRecord is the durable credential set stored per provider. It is
// created on the first authorization-code exchange and mutated in place on
// every refresh; it is never deleted, only overwritten on re-authorization.
type TokenRecord struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
