package storage

import (
	"context"

	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/core"
)

// Storage defines the interface for data persistence
type Storage interface {
	// Provider tokens
	GetProviderToken(ctx context.Context, provider core.Provider) (*core.TokenRecord, error)
	SaveProviderToken(ctx context.Context, provider core.Provider, record *core.TokenRecord) error

	// Boost counters. NextBoostIndex atomically increments the per-room
	// counter and returns its value before the increment, so the first
	// call for a room yields 0.
	NextBoostIndex(ctx context.Context, homeID, roomID string) (int64, error)

	// Lifecycle
	Close() error
}
