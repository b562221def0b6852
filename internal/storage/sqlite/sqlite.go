package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/core"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage implements storage.Storage using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// New creates a new SQLite storage instance
func New(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Serialized writes; the boost counter upsert relies on this
	db.SetMaxOpenConns(1)

	storage := &SQLiteStorage{db: db}

	if err := storage.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return storage, nil
}

// migrate creates the database schema
func (s *SQLiteStorage) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS provider_tokens (
			provider TEXT PRIMARY KEY,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			expires_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS boost_counters (
			home_id TEXT NOT NULL,
			room_id TEXT NOT NULL,
			call_count INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (home_id, room_id)
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// GetProviderToken retrieves the stored token record for a provider.
// Returns core.ErrNotFound when no record exists.
func (s *SQLiteStorage) GetProviderToken(ctx context.Context, provider core.Provider) (*core.TokenRecord, error) {
	query := `
		SELECT access_token, refresh_token, expires_at, created_at, updated_at
		FROM provider_tokens
		WHERE provider = ?
	`

	record := &core.TokenRecord{}
	err := s.db.QueryRowContext(ctx, query, string(provider)).Scan(
		&record.AccessToken,
		&record.RefreshToken,
		&record.ExpiresAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider token: %w", err)
	}

	return record, nil
}

// SaveProviderToken upserts the token record for a provider
func (s *SQLiteStorage) SaveProviderToken(ctx context.Context, provider core.Provider, record *core.TokenRecord) error {
	now := time.Now().UTC()

	query := `
		INSERT INTO provider_tokens (provider, access_token, refresh_token, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		string(provider),
		record.AccessToken,
		record.RefreshToken,
		record.ExpiresAt.UTC(),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to save provider token: %w", err)
	}

	return nil
}

// NextBoostIndex atomically increments the boost counter for a (home, room)
// pair and returns the pre-increment value. Counters for different rooms are
// independent.
func (s *SQLiteStorage) NextBoostIndex(ctx context.Context, homeID, roomID string) (int64, error) {
	query := `
		INSERT INTO boost_counters (home_id, room_id, call_count, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(home_id, room_id) DO UPDATE SET
			call_count = call_count + 1,
			updated_at = excluded.updated_at
		RETURNING call_count - 1
	`

	var index int64
	err := s.db.QueryRowContext(ctx, query, homeID, roomID, time.Now().UTC()).Scan(&index)
	if err != nil {
		return 0, fmt.Errorf("failed to advance boost counter: %w", err)
	}

	return index, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
