package daikin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/S1moT3ch/AcsaHomeConnectV2/config"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/core"
)

// Characteristic names accepted by the climateControl management point.
const (
	CharacteristicOnOffMode          = "onOffMode"
	CharacteristicOperationMode      = "operationMode"
	CharacteristicTemperatureControl = "temperatureControl"
	CharacteristicFanControl         = "fanControl"
)

// TokenSource supplies valid bearer tokens. Implemented by the token manager.
type TokenSource interface {
	GetValidToken(ctx context.Context, provider core.Provider) (string, error)
}

// Client talks to the Daikin Onecta cloud API. It returns device trees
// unmodified; interpreting them is the climate package's job.
type Client struct {
	apiBase    string
	apiKey     string // Onecta requires x-api-key set to the OAuth client id
	tokens     TokenSource
	httpClient *http.Client
}

// NewClient creates a new Daikin Onecta client
func NewClient(cfg config.ProviderConfig, tokens TokenSource) *Client {
	return &Client{
		apiBase: cfg.APIBase,
		apiKey:  cfg.ClientID,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ListDevices fetches all gateway devices for the account
func (c *Client) ListDevices(ctx context.Context) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/gateway-devices", c.apiBase)
	return c.get(ctx, url)
}

// GetDevice fetches a single gateway device by id
func (c *Client) GetDevice(ctx context.Context, deviceID string) (json.RawMessage, error) {
	if deviceID == "" {
		return nil, &core.MissingParametersError{Params: []string{"deviceId"}}
	}
	url := fmt.Sprintf("%s/gateway-devices/%s", c.apiBase, deviceID)
	return c.get(ctx, url)
}

// SendCharacteristic PATCHes one climateControl characteristic. The body is
// the characteristic-specific envelope built by the climate package.
func (c *Client) SendCharacteristic(ctx context.Context, deviceID, characteristic string, body any) error {
	if deviceID == "" {
		return &core.MissingParametersError{Params: []string{"deviceId"}}
	}

	url := fmt.Sprintf("%s/gateway-devices/%s/management-points/climateControl/characteristics/%s",
		c.apiBase, deviceID, characteristic)

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal characteristic body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPatch, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return &core.UpstreamError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return nil
}

func (c *Client) get(ctx context.Context, url string) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &core.UpstreamError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

// newRequest creates an HTTP request with the bearer token and API key headers
func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	accessToken, err := c.tokens.GetValidToken(ctx, core.ProviderDaikin)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("x-api-key", c.apiKey)

	return req, nil
}
