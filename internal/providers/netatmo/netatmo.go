package netatmo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/S1moT3ch/AcsaHomeConnectV2/config"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/core"
)

// Thermostat setpoint modes accepted by the setstate endpoint.
const (
	ModeHome       = "home"
	ModeAway       = "away"
	ModeFrostguard = "frostguard"
	ModeManual     = "manual"
)

// Defaults the createnewhomeschedule endpoint applies when unset.
const (
	defaultAwayTemp = 12.0
	defaultHgTemp   = 7.0
)

// TokenSource supplies valid bearer tokens. Implemented by the token manager.
type TokenSource interface {
	GetValidToken(ctx context.Context, provider core.Provider) (string, error)
}

// Client talks to the Netatmo Energy API.
type Client struct {
	apiBase    string
	tokens     TokenSource
	httpClient *http.Client
}

// NewClient creates a new Netatmo client
func NewClient(cfg config.ProviderConfig, tokens TokenSource) *Client {
	return &Client{
		apiBase: cfg.APIBase,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetHomes fetches the account's homes topology. Fails with
// core.ErrNoHomesFound when the account has no homes.
func (c *Client) GetHomes(ctx context.Context) (json.RawMessage, error) {
	body, err := c.getJSON(ctx, fmt.Sprintf("%s/homesdata", c.apiBase))
	if err != nil {
		return nil, err
	}

	var topology struct {
		Homes []json.RawMessage `json:"homes"`
	}
	// A broken body is a provider fault, not an unpaired account
	if err := json.Unmarshal(body, &topology); err != nil {
		return nil, fmt.Errorf("failed to parse homes topology: %w", err)
	}
	if len(topology.Homes) == 0 {
		return nil, core.ErrNoHomesFound
	}

	return body, nil
}

// GetHomeStatus fetches the live status of one home
func (c *Client) GetHomeStatus(ctx context.Context, homeID string) (json.RawMessage, error) {
	if homeID == "" {
		return nil, &core.MissingParametersError{Params: []string{"homeId"}}
	}

	endpoint := fmt.Sprintf("%s/homestatus?%s", c.apiBase, url.Values{"home_id": {homeID}}.Encode())
	return c.getJSON(ctx, endpoint)
}

// RoomState describes a setpoint change for one room.
// Temperature and EndTime are only sent when Mode is "manual".
type RoomState struct {
	HomeID      string
	RoomID      string
	Mode        string
	Temperature *float64
	EndTime     *int64 // UNIX seconds
}

// SetRoomState posts a room setpoint change via the setstate endpoint
func (c *Client) SetRoomState(ctx context.Context, state RoomState) (json.RawMessage, error) {
	missing := make([]string, 0, 3)
	if state.HomeID == "" {
		missing = append(missing, "homeId")
	}
	if state.RoomID == "" {
		missing = append(missing, "roomId")
	}
	if state.Mode == "" {
		missing = append(missing, "mode")
	}
	if len(missing) > 0 {
		return nil, &core.MissingParametersError{Params: missing}
	}

	room := map[string]any{
		"id":                  state.RoomID,
		"therm_setpoint_mode": state.Mode,
	}
	if state.Mode == ModeManual {
		if state.Temperature != nil {
			room["therm_setpoint_temperature"] = *state.Temperature
		}
		if state.EndTime != nil {
			room["therm_setpoint_end_time"] = *state.EndTime
		}
	}

	payload := map[string]any{
		"home": map[string]any{
			"id":    state.HomeID,
			"rooms": []any{room},
		},
	}

	return c.postJSON(ctx, fmt.Sprintf("%s/setstate", c.apiBase), payload)
}

// SwitchSchedule activates a schedule already configured in the home
func (c *Client) SwitchSchedule(ctx context.Context, homeID, scheduleID string) (json.RawMessage, error) {
	missing := make([]string, 0, 2)
	if homeID == "" {
		missing = append(missing, "homeId")
	}
	if scheduleID == "" {
		missing = append(missing, "scheduleId")
	}
	if len(missing) > 0 {
		return nil, &core.MissingParametersError{Params: missing}
	}

	payload := map[string]any{
		"home_id":     homeID,
		"schedule_id": scheduleID,
	}

	return c.postJSON(ctx, fmt.Sprintf("%s/switchschedule", c.apiBase), payload)
}

// SyncScheduleRequest updates an existing schedule's timetable and zones.
type SyncScheduleRequest struct {
	HomeID     string          `json:"homeId"`
	ScheduleID string          `json:"scheduleId"` // optional: omitted to update the active one
	Name       string          `json:"name"`
	Timetable  json.RawMessage `json:"timetable"`
	Zones      json.RawMessage `json:"zones"`
}

// SyncSchedule pushes a schedule definition via the syncschedule endpoint
func (c *Client) SyncSchedule(ctx context.Context, req SyncScheduleRequest) (json.RawMessage, error) {
	missing := make([]string, 0, 3)
	if req.HomeID == "" {
		missing = append(missing, "homeId")
	}
	if len(req.Timetable) == 0 {
		missing = append(missing, "timetable")
	}
	if len(req.Zones) == 0 {
		missing = append(missing, "zones")
	}
	if len(missing) > 0 {
		return nil, &core.MissingParametersError{Params: missing}
	}

	payload := map[string]any{
		"home_id":   req.HomeID,
		"timetable": req.Timetable,
		"zones":     req.Zones,
		"name":      req.Name,
	}
	if req.ScheduleID != "" {
		payload["schedule_id"] = req.ScheduleID
	}

	return c.postJSON(ctx, fmt.Sprintf("%s/syncschedule", c.apiBase), payload)
}

// CreateScheduleRequest creates a new heating schedule.
// Zones and Timetable are forwarded as embedded JSON text inside a
// form-encoded body -- a Netatmo requirement, not a convention.
type CreateScheduleRequest struct {
	HomeID    string          `json:"home_id"`
	Name      string          `json:"name"`
	ProgramID string          `json:"program_id"`
	Selected  *bool           `json:"selected"`
	Zones     json.RawMessage `json:"zones"`
	Timetable json.RawMessage `json:"timetable"`
	AwayTemp  *float64        `json:"away_temp"`
	HgTemp    *float64        `json:"hg_temp"`
}

// CreateSchedule creates a new home schedule. Required fields are validated
// before any upstream call; defaults are away_temp=12, hg_temp=7,
// selected=true.
func (c *Client) CreateSchedule(ctx context.Context, req CreateScheduleRequest) (json.RawMessage, error) {
	missing := make([]string, 0, 5)
	if req.HomeID == "" {
		missing = append(missing, "home_id")
	}
	if req.Name == "" {
		missing = append(missing, "name")
	}
	if req.ProgramID == "" {
		missing = append(missing, "program_id")
	}
	if len(req.Zones) == 0 {
		missing = append(missing, "zones")
	}
	if len(req.Timetable) == 0 {
		missing = append(missing, "timetable")
	}
	if len(missing) > 0 {
		return nil, &core.MissingParametersError{Params: missing}
	}

	selected := true
	if req.Selected != nil {
		selected = *req.Selected
	}
	awayTemp := defaultAwayTemp
	if req.AwayTemp != nil {
		awayTemp = *req.AwayTemp
	}
	hgTemp := defaultHgTemp
	if req.HgTemp != nil {
		hgTemp = *req.HgTemp
	}

	form := url.Values{
		"home_id":    {req.HomeID},
		"name":       {req.Name},
		"program_id": {req.ProgramID},
		"selected":   {strconv.FormatBool(selected)},
		"away_temp":  {formatTemp(awayTemp)},
		"hg_temp":    {formatTemp(hgTemp)},
		"zones":      {string(req.Zones)},
		"timetable":  {string(req.Timetable)},
	}

	return c.postForm(ctx, fmt.Sprintf("%s/createnewhomeschedule", c.apiBase), form)
}

// SwitchHomeSchedule selects which schedule is active for a home
func (c *Client) SwitchHomeSchedule(ctx context.Context, homeID, scheduleID string, selected *bool) (json.RawMessage, error) {
	missing := make([]string, 0, 2)
	if homeID == "" {
		missing = append(missing, "home_id")
	}
	if scheduleID == "" {
		missing = append(missing, "schedule_id")
	}
	if len(missing) > 0 {
		return nil, &core.MissingParametersError{Params: missing}
	}

	sel := true
	if selected != nil {
		sel = *selected
	}

	form := url.Values{
		"home_id":     {homeID},
		"schedule_id": {scheduleID},
		"selected":    {strconv.FormatBool(sel)},
	}

	return c.postForm(ctx, fmt.Sprintf("%s/switchhomeschedule", c.apiBase), form)
}

func formatTemp(t float64) string {
	return strconv.FormatFloat(t, 'f', -1, 64)
}

func (c *Client) getJSON(ctx context.Context, endpoint string) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any) (json.RawMessage, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req)
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
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

	// Netatmo wraps every payload in {"status": ..., "body": ...}
	var envelope struct {
		Body json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(respBody, &envelope); err == nil && len(envelope.Body) > 0 {
		return envelope.Body, nil
	}

	return respBody, nil
}

// newRequest creates an HTTP request with the bearer token header
func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	accessToken, err := c.tokens.GetValidToken(ctx, core.ProviderNetatmo)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)

	return req, nil
}
