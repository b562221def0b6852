package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/S1moT3ch/AcsaHomeConnectV2/config"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/core"

	"golang.org/x/oauth2"
)

const (
	// Tokens are refreshed this much before their stored expiry so that
	// requests already in flight do not race an expiring token.
	expirySkew = 30 * time.Second

	// Netatmo omits expires_in on refresh responses; observed lifetime
	// is 30 minutes.
	defaultExpiresIn = 1800 * time.Second

	httpTimeout = 10 * time.Second
)

// Store is the credential store the manager reads and writes. Implemented
// by the storage layer; only the token manager touches provider tokens.
type Store interface {
	GetProviderToken(ctx context.Context, provider core.Provider) (*core.TokenRecord, error)
	SaveProviderToken(ctx context.Context, provider core.Provider, record *core.TokenRecord) error
}

// providerState holds the per-provider OAuth2 configuration and the mutex
// serializing refresh attempts. Providers refresh independently.
type providerState struct {
	mu     sync.Mutex
	config *oauth2.Config
}

// Manager owns the token lifecycle for all providers: it returns valid
// bearer tokens, refreshing them at most once per expiry regardless of how
// many callers observe the expiry concurrently.
type Manager struct {
	store      Store
	logger     *slog.Logger
	httpClient *http.Client
	providers  map[core.Provider]*providerState
}

// NewManager creates a token manager for the configured providers
func NewManager(store Store, daikin, netatmo config.ProviderConfig, logger *slog.Logger) *Manager {
	return &Manager{
		store:      store,
		logger:     logger,
		httpClient: &http.Client{Timeout: httpTimeout},
		providers: map[core.Provider]*providerState{
			core.ProviderDaikin:  {config: oauthConfig(daikin)},
			core.ProviderNetatmo: {config: oauthConfig(netatmo)},
		},
	}
}

func oauthConfig(cfg config.ProviderConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthorizeURL,
			TokenURL: cfg.TokenURL,
			// Both providers expect client credentials in the POST body
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: strings.Fields(cfg.Scope),
	}
}

func (m *Manager) state(provider core.Provider) (*providerState, error) {
	st, ok := m.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %q", provider)
	}
	return st, nil
}

// GetValidToken returns a bearer token for the provider, refreshing the
// stored record first when it has expired. Concurrent callers observing an
// expired token serialize on the provider mutex: the first performs the
// refresh, the rest re-read the updated record and return the same token.
func (m *Manager) GetValidToken(ctx context.Context, provider core.Provider) (string, error) {
	st, err := m.state(provider)
	if err != nil {
		return "", err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	record, err := m.store.GetProviderToken(ctx, provider)
	if errors.Is(err, core.ErrNotFound) {
		return "", core.ErrNotAuthenticated
	}
	if err != nil {
		return "", fmt.Errorf("failed to load token record: %w", err)
	}

	if time.Now().Before(record.ExpiresAt.Add(-expirySkew)) {
		return record.AccessToken, nil
	}

	return m.refreshLocked(ctx, provider, st, record)
}

// ForceRefresh discards the stored access token and performs a refresh
// immediately. Used by the gateway's single 401 recovery retry.
func (m *Manager) ForceRefresh(ctx context.Context, provider core.Provider) (string, error) {
	st, err := m.state(provider)
	if err != nil {
		return "", err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	record, err := m.store.GetProviderToken(ctx, provider)
	if errors.Is(err, core.ErrNotFound) {
		return "", core.ErrNotAuthenticated
	}
	if err != nil {
		return "", fmt.Errorf("failed to load token record: %w", err)
	}

	return m.refreshLocked(ctx, provider, st, record)
}

// refreshLocked exchanges the stored refresh token for a new access token
// and writes the updated record back. The provider mutex must be held.
func (m *Manager) refreshLocked(ctx context.Context, provider core.Provider, st *providerState, record *core.TokenRecord) (string, error) {
	if record.RefreshToken == "" {
		return "", core.ErrNotAuthenticated
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	source := st.config.TokenSource(ctx, &oauth2.Token{RefreshToken: record.RefreshToken})

	tok, err := source.Token()
	if err != nil {
		refreshFailure.WithLabelValues(string(provider)).Inc()
		tokenValid.WithLabelValues(string(provider)).Set(0)

		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			body := strings.TrimSpace(string(retrieveErr.Body))
			err = fmt.Errorf("token endpoint returned %d: %s", retrieveErr.Response.StatusCode, body)
		}

		m.logger.Error("Token refresh failed",
			"component", "token",
			"provider", provider,
			"error", err,
		)
		return "", &core.RefreshFailedError{Provider: provider, Err: err}
	}

	record.AccessToken = tok.AccessToken
	if tok.Expiry.IsZero() {
		record.ExpiresAt = time.Now().Add(defaultExpiresIn)
	} else {
		record.ExpiresAt = tok.Expiry
	}
	// A new refresh token replaces the old one only when the provider
	// actually returned one
	if tok.RefreshToken != "" {
		record.RefreshToken = tok.RefreshToken
	}

	if err := m.store.SaveProviderToken(ctx, provider, record); err != nil {
		refreshFailure.WithLabelValues(string(provider)).Inc()
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	refreshSuccess.WithLabelValues(string(provider)).Inc()
	tokenValid.WithLabelValues(string(provider)).Set(1)

	m.logger.Info("Access token refreshed",
		"component", "token",
		"provider", provider,
		"expires_at", record.ExpiresAt,
	)

	return record.AccessToken, nil
}

// AuthCodeURL builds the provider's authorization redirect URL
func (m *Manager) AuthCodeURL(provider core.Provider, state string) (string, error) {
	st, err := m.state(provider)
	if err != nil {
		return "", err
	}
	return st.config.AuthCodeURL(state), nil
}

// Exchange trades an authorization code for tokens and stores the record,
// overwriting any previous credential for the provider.
func (m *Manager) Exchange(ctx context.Context, provider core.Provider, code string) error {
	st, err := m.state(provider)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	tok, err := st.config.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			body := strings.TrimSpace(string(retrieveErr.Body))
			return fmt.Errorf("token exchange returned %d: %s", retrieveErr.Response.StatusCode, body)
		}
		return fmt.Errorf("token exchange failed: %w", err)
	}
	if tok.RefreshToken == "" {
		return fmt.Errorf("token exchange returned no refresh token; check scope and redirect URI")
	}

	record := &core.TokenRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = time.Now().Add(defaultExpiresIn)
	}

	if err := m.store.SaveProviderToken(ctx, provider, record); err != nil {
		return fmt.Errorf("failed to persist token record: %w", err)
	}

	tokenValid.WithLabelValues(string(provider)).Set(1)

	m.logger.Info("Authorization code exchanged",
		"component", "token",
		"provider", provider,
		"expires_at", record.ExpiresAt,
	)

	return nil
}

// Seed stores an operator-supplied token pair for a provider. Used to
// bootstrap Netatmo from a refresh token issued in the developer console.
func (m *Manager) Seed(ctx context.Context, provider core.Provider, accessToken, refreshToken string) error {
	st, err := m.state(provider)
	if err != nil {
		return err
	}

	missing := make([]string, 0, 2)
	if accessToken == "" {
		missing = append(missing, "access_token")
	}
	if refreshToken == "" {
		missing = append(missing, "refresh_token")
	}
	if len(missing) > 0 {
		return &core.MissingParametersError{Params: missing}
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	record := &core.TokenRecord{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(defaultExpiresIn),
	}

	if err := m.store.SaveProviderToken(ctx, provider, record); err != nil {
		return fmt.Errorf("failed to persist seeded tokens: %w", err)
	}

	tokenValid.WithLabelValues(string(provider)).Set(1)
	return nil
}
