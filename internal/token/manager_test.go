package token

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/S1moT3ch/AcsaHomeConnectV2/config"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory credential store for tests
type memStore struct {
	mu      sync.Mutex
	records map[core.Provider]*core.TokenRecord
}

func newMemStore() *memStore {
	return &memStore{records: make(map[core.Provider]*core.TokenRecord)}
}

func (s *memStore) GetProviderToken(ctx context.Context, provider core.Provider) (*core.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[provider]
	if !ok {
		return nil, core.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *memStore) SaveProviderToken(ctx context.Context, provider core.Provider, record *core.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *record
	s.records[provider] = &copied
	return nil
}

type tokenServer struct {
	*httptest.Server
	refreshCalls atomic.Int64

	mu       sync.Mutex
	response map[string]any
	status   int
	delay    time.Duration
}

// newTokenServer serves an OAuth2 token endpoint that counts refresh calls
func newTokenServer(t *testing.T) *tokenServer {
	ts := &tokenServer{
		status: http.StatusOK,
		response: map[string]any{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"expires_in":    3600,
		},
	}

	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())

		ts.mu.Lock()
		response := ts.response
		status := ts.status
		delay := ts.delay
		ts.mu.Unlock()

		if r.Form.Get("grant_type") == "refresh_token" {
			ts.refreshCalls.Add(1)
		}
		if delay > 0 {
			time.Sleep(delay)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(response)
	}))

	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) setResponse(status int, response map[string]any) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.status = status
	ts.response = response
}

func newTestManager(store Store, tokenURL string) *Manager {
	cfg := config.ProviderConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://localhost:5000/callback",
		AuthorizeURL: "http://localhost:5000/authorize",
		TokenURL:     tokenURL,
		APIBase:      "http://localhost:5000/api",
		Scope:        "read write",
	}
	logger := slog.New(slog.DiscardHandler)
	return NewManager(store, cfg, cfg, logger)
}

func expiredRecord() *core.TokenRecord {
	return &core.TokenRecord{
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		ExpiresAt:    time.Now().Add(-time.Second),
	}
}

func TestGetValidToken_NoRecord(t *testing.T) {
	server := newTokenServer(t)
	manager := newTestManager(newMemStore(), server.URL)

	_, err := manager.GetValidToken(context.Background(), core.ProviderDaikin)
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)
	assert.Equal(t, int64(0), server.refreshCalls.Load())
}

func TestGetValidToken_UnknownProvider(t *testing.T) {
	server := newTokenServer(t)
	manager := newTestManager(newMemStore(), server.URL)

	_, err := manager.GetValidToken(context.Background(), core.Provider("tado"))
	assert.Error(t, err)
}

func TestGetValidToken_StillValid(t *testing.T) {
	server := newTokenServer(t)
	store := newMemStore()
	require.NoError(t, store.SaveProviderToken(context.Background(), core.ProviderDaikin, &core.TokenRecord{
		AccessToken:  "current-access",
		RefreshToken: "current-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}))

	manager := newTestManager(store, server.URL)

	got, err := manager.GetValidToken(context.Background(), core.ProviderDaikin)
	require.NoError(t, err)
	assert.Equal(t, "current-access", got)
	assert.Equal(t, int64(0), server.refreshCalls.Load(), "no refresh for a valid token")
}

func TestGetValidToken_RefreshesExpired(t *testing.T) {
	server := newTokenServer(t)
	store := newMemStore()
	ctx := context.Background()
	require.NoError(t, store.SaveProviderToken(ctx, core.ProviderNetatmo, expiredRecord()))

	manager := newTestManager(store, server.URL)

	got, err := manager.GetValidToken(ctx, core.ProviderNetatmo)
	require.NoError(t, err)
	assert.Equal(t, "new-access", got)
	assert.Equal(t, int64(1), server.refreshCalls.Load())

	// The store now holds the refreshed record
	record, err := store.GetProviderToken(ctx, core.ProviderNetatmo)
	require.NoError(t, err)
	assert.Equal(t, "new-access", record.AccessToken)
	assert.Equal(t, "new-refresh", record.RefreshToken)
	assert.True(t, record.ExpiresAt.After(time.Now()))
}

func TestGetValidToken_DefaultExpiryWhenOmitted(t *testing.T) {
	server := newTokenServer(t)
	server.setResponse(http.StatusOK, map[string]any{
		"access_token": "new-access",
	})

	store := newMemStore()
	ctx := context.Background()
	require.NoError(t, store.SaveProviderToken(ctx, core.ProviderNetatmo, expiredRecord()))

	manager := newTestManager(store, server.URL)

	_, err := manager.GetValidToken(ctx, core.ProviderNetatmo)
	require.NoError(t, err)

	record, err := store.GetProviderToken(ctx, core.ProviderNetatmo)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(defaultExpiresIn), record.ExpiresAt, 5*time.Second)
}

func TestGetValidToken_KeepsRefreshTokenWhenOmitted(t *testing.T) {
	server := newTokenServer(t)
	server.setResponse(http.StatusOK, map[string]any{
		"access_token": "new-access",
		"expires_in":   3600,
	})

	store := newMemStore()
	ctx := context.Background()
	require.NoError(t, store.SaveProviderToken(ctx, core.ProviderDaikin, expiredRecord()))

	manager := newTestManager(store, server.URL)

	_, err := manager.GetValidToken(ctx, core.ProviderDaikin)
	require.NoError(t, err)

	record, err := store.GetProviderToken(ctx, core.ProviderDaikin)
	require.NoError(t, err)
	assert.Equal(t, "old-refresh", record.RefreshToken, "old refresh token survives when the provider omits a new one")
}

func TestGetValidToken_RefreshRejected(t *testing.T) {
	server := newTokenServer(t)
	server.setResponse(http.StatusBadRequest, map[string]any{
		"error": "invalid_grant",
	})

	store := newMemStore()
	ctx := context.Background()
	require.NoError(t, store.SaveProviderToken(ctx, core.ProviderDaikin, expiredRecord()))

	manager := newTestManager(store, server.URL)

	_, err := manager.GetValidToken(ctx, core.ProviderDaikin)
	var refreshErr *core.RefreshFailedError
	require.ErrorAs(t, err, &refreshErr)
	assert.Equal(t, core.ProviderDaikin, refreshErr.Provider)
	assert.Contains(t, refreshErr.Error(), "invalid_grant")
}

func TestGetValidToken_ConcurrentCallersSingleRefresh(t *testing.T) {
	server := newTokenServer(t)
	server.mu.Lock()
	server.delay = 50 * time.Millisecond
	server.mu.Unlock()

	store := newMemStore()
	ctx := context.Background()
	require.NoError(t, store.SaveProviderToken(ctx, core.ProviderNetatmo, expiredRecord()))

	manager := newTestManager(store, server.URL)

	const callers = 8
	tokens := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			tokens[slot], errs[slot] = manager.GetValidToken(ctx, core.ProviderNetatmo)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "new-access", tokens[i], "caller %d received a different token", i)
	}
	assert.Equal(t, int64(1), server.refreshCalls.Load(), "exactly one upstream refresh")
}

func TestGetValidToken_ProvidersRefreshIndependently(t *testing.T) {
	server := newTokenServer(t)
	store := newMemStore()
	ctx := context.Background()
	require.NoError(t, store.SaveProviderToken(ctx, core.ProviderDaikin, expiredRecord()))
	require.NoError(t, store.SaveProviderToken(ctx, core.ProviderNetatmo, expiredRecord()))

	manager := newTestManager(store, server.URL)

	_, err := manager.GetValidToken(ctx, core.ProviderDaikin)
	require.NoError(t, err)
	_, err = manager.GetValidToken(ctx, core.ProviderNetatmo)
	require.NoError(t, err)

	assert.Equal(t, int64(2), server.refreshCalls.Load(), "one refresh per provider")
}

func TestForceRefresh(t *testing.T) {
	server := newTokenServer(t)
	store := newMemStore()
	ctx := context.Background()
	require.NoError(t, store.SaveProviderToken(ctx, core.ProviderDaikin, &core.TokenRecord{
		AccessToken:  "current-access",
		RefreshToken: "current-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}))

	manager := newTestManager(store, server.URL)

	got, err := manager.ForceRefresh(ctx, core.ProviderDaikin)
	require.NoError(t, err)
	assert.Equal(t, "new-access", got)
	assert.Equal(t, int64(1), server.refreshCalls.Load(), "forced refresh ignores stored expiry")
}

func TestExchange(t *testing.T) {
	server := newTokenServer(t)
	store := newMemStore()
	ctx := context.Background()

	manager := newTestManager(store, server.URL)

	require.NoError(t, manager.Exchange(ctx, core.ProviderDaikin, "auth-code"))

	record, err := store.GetProviderToken(ctx, core.ProviderDaikin)
	require.NoError(t, err)
	assert.Equal(t, "new-access", record.AccessToken)
	assert.Equal(t, "new-refresh", record.RefreshToken)
}

func TestExchange_NoRefreshToken(t *testing.T) {
	server := newTokenServer(t)
	server.setResponse(http.StatusOK, map[string]any{
		"access_token": "new-access",
		"expires_in":   3600,
	})

	manager := newTestManager(newMemStore(), server.URL)

	err := manager.Exchange(context.Background(), core.ProviderDaikin, "auth-code")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh token")
}

func TestSeed(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	manager := newTestManager(store, "http://localhost:1/token")

	t.Run("stores the pair with a 30 minute expiry", func(t *testing.T) {
		require.NoError(t, manager.Seed(ctx, core.ProviderNetatmo, "seed-access", "seed-refresh"))

		record, err := store.GetProviderToken(ctx, core.ProviderNetatmo)
		require.NoError(t, err)
		assert.Equal(t, "seed-access", record.AccessToken)
		assert.WithinDuration(t, time.Now().Add(defaultExpiresIn), record.ExpiresAt, 5*time.Second)
	})

	t.Run("rejects missing tokens", func(t *testing.T) {
		err := manager.Seed(ctx, core.ProviderNetatmo, "", "")
		var missingErr *core.MissingParametersError
		require.ErrorAs(t, err, &missingErr)
		assert.Equal(t, []string{"access_token", "refresh_token"}, missingErr.Params)
	})
}

func TestAuthCodeURL(t *testing.T) {
	manager := newTestManager(newMemStore(), "http://localhost:1/token")

	url, err := manager.AuthCodeURL(core.ProviderDaikin, "state-123")
	require.NoError(t, err)
	assert.Contains(t, url, "response_type=code")
	assert.Contains(t, url, "state=state-123")
	assert.Contains(t, url, "client_id=client-id")
	assert.Contains(t, url, fmt.Sprintf("scope=%s", "read+write"))
}
