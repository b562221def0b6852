package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotAuthenticated indicates no credential is stored for a provider.
	// The caller must run the authorization-code flow before retrying.
	ErrNotAuthenticated = errors.New("not authenticated: no stored credential for provider")

	// ErrNoHomesFound indicates the Netatmo account has no associated homes.
	ErrNoHomesFound = errors.New("no homes found for this account")

	// ErrNotFound indicates a requested record does not exist in storage.
	ErrNotFound = errors.New("record not found")
)

// RefreshFailedError indicates the refresh-token exchange was rejected.
// This is terminal for the stored token: the operator has to re-authorize.
type RefreshFailedError struct {
	Provider Provider
	Err      error
}

func (e *RefreshFailedError) Error() string {
	return fmt.Sprintf("token refresh failed for provider %s: %v", e.Provider, e.Err)
}

func (e *RefreshFailedError) Unwrap() error {
	return e.Err
}

// UpstreamError represents a non-2xx response from a provider API.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream API returned status %d: %s", e.StatusCode, e.Body)
}

// MissingParametersError lists the required parameters absent from a request.
// No upstream call is made when this is returned.
type MissingParametersError struct {
	Params []string
}

func (e *MissingParametersError) Error() string {
	return fmt.Sprintf("missing required parameters: %s", strings.Join(e.Params, ", "))
}
