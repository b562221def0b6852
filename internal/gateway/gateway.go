package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/boost"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/climate"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/core"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/providers/netatmo"
)

// TokenManager is the part of the token lifecycle the gateway drives.
type TokenManager interface {
	GetValidToken(ctx context.Context, provider core.Provider) (string, error)
	ForceRefresh(ctx context.Context, provider core.Provider) (string, error)
}

// DaikinClient is the Daikin adapter surface consumed by the gateway.
type DaikinClient interface {
	ListDevices(ctx context.Context) (json.RawMessage, error)
	GetDevice(ctx context.Context, deviceID string) (json.RawMessage, error)
	SendCharacteristic(ctx context.Context, deviceID, characteristic string, body any) error
}

// NetatmoClient is the Netatmo adapter surface consumed by the gateway.
type NetatmoClient interface {
	GetHomes(ctx context.Context) (json.RawMessage, error)
	GetHomeStatus(ctx context.Context, homeID string) (json.RawMessage, error)
	SetRoomState(ctx context.Context, state netatmo.RoomState) (json.RawMessage, error)
	SwitchSchedule(ctx context.Context, homeID, scheduleID string) (json.RawMessage, error)
	SyncSchedule(ctx context.Context, req netatmo.SyncScheduleRequest) (json.RawMessage, error)
	CreateSchedule(ctx context.Context, req netatmo.CreateScheduleRequest) (json.RawMessage, error)
	SwitchHomeSchedule(ctx context.Context, homeID, scheduleID string, selected *bool) (json.RawMessage, error)
}

// BoostSequencer hands out per-room boost call indexes. Implemented by the
// storage layer with atomic increment semantics.
type BoostSequencer interface {
	NextBoostIndex(ctx context.Context, homeID, roomID string) (int64, error)
}

// Target identifies the device a command is addressed to: a Daikin gateway
// device, or a Netatmo (home, room) pair.
type Target struct {
	DeviceID string
	HomeID   string
	RoomID   string
}

// Gateway composes the token manager, provider adapters and command
// normalizer behind the operations the route layer consumes. It applies
// exactly one recovery strategy -- one forced token refresh and retry on an
// upstream 401 -- and propagates every other error unchanged.
type Gateway struct {
	tokens  TokenManager
	daikin  DaikinClient
	netatmo NetatmoClient
	boosts  BoostSequencer
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a gateway over the given collaborators
func New(tokens TokenManager, daikinClient DaikinClient, netatmoClient NetatmoClient, boosts BoostSequencer, logger *slog.Logger) *Gateway {
	return &Gateway{
		tokens:  tokens,
		daikin:  daikinClient,
		netatmo: netatmoClient,
		boosts:  boosts,
		logger:  logger,
		now:     time.Now,
	}
}

// withAuthRetry runs fn, and on an upstream 401 forces one token refresh and
// retries exactly once. This is the only retry in the system.
func withAuthRetry[T any](ctx context.Context, g *Gateway, provider core.Provider, fn func() (T, error)) (T, error) {
	result, err := fn()
	if err == nil {
		return result, nil
	}

	var upstreamErr *core.UpstreamError
	if !errors.As(err, &upstreamErr) || upstreamErr.StatusCode != http.StatusUnauthorized {
		return result, err
	}

	g.logger.Info("Upstream rejected token, forcing refresh",
		"component", "gateway",
		"provider", provider,
	)

	if _, refreshErr := g.tokens.ForceRefresh(ctx, provider); refreshErr != nil {
		return result, refreshErr
	}

	return fn()
}

// ListDevices lists the controllable devices of a provider: Daikin gateway
// devices, or Netatmo homes.
func (g *Gateway) ListDevices(ctx context.Context, provider core.Provider) (json.RawMessage, error) {
	switch provider {
	case core.ProviderDaikin:
		return withAuthRetry(ctx, g, provider, func() (json.RawMessage, error) {
			return g.daikin.ListDevices(ctx)
		})
	case core.ProviderNetatmo:
		return withAuthRetry(ctx, g, provider, func() (json.RawMessage, error) {
			return g.netatmo.GetHomes(ctx)
		})
	default:
		return nil, fmt.Errorf("unknown provider: %q", provider)
	}
}

// GetStatus returns the display status of one target: the flattened climate
// view for a Daikin device, or the raw home status for a Netatmo home.
func (g *Gateway) GetStatus(ctx context.Context, provider core.Provider, target Target) (any, error) {
	switch provider {
	case core.ProviderDaikin:
		raw, err := withAuthRetry(ctx, g, provider, func() (json.RawMessage, error) {
			return g.daikin.GetDevice(ctx, target.DeviceID)
		})
		if err != nil {
			return nil, err
		}
		status, err := climate.Flatten(raw)
		if err != nil {
			return nil, err
		}
		return status, nil
	case core.ProviderNetatmo:
		return withAuthRetry(ctx, g, provider, func() (json.RawMessage, error) {
			return g.netatmo.GetHomeStatus(ctx, target.HomeID)
		})
	default:
		return nil, fmt.Errorf("unknown provider: %q", provider)
	}
}

// SendCommand dispatches one provider-agnostic command to its target.
func (g *Gateway) SendCommand(ctx context.Context, provider core.Provider, target Target, cmd core.DeviceCommand) error {
	switch provider {
	case core.ProviderDaikin:
		return g.sendDaikinCommand(ctx, target.DeviceID, cmd)
	case core.ProviderNetatmo:
		return g.sendNetatmoCommand(ctx, target, cmd)
	default:
		return fmt.Errorf("unknown provider: %q", provider)
	}
}

func (g *Gateway) sendDaikinCommand(ctx context.Context, deviceID string, cmd core.DeviceCommand) error {
	if deviceID == "" {
		return &core.MissingParametersError{Params: []string{"deviceId"}}
	}

	// Temperature and fan-speed targets are scoped to the active operation
	// mode, so the current device tree is fetched first
	var deviceRaw json.RawMessage
	if cmd.Kind == core.CommandTemperature || cmd.Kind == core.CommandFanSpeed {
		raw, err := withAuthRetry(ctx, g, core.ProviderDaikin, func() (json.RawMessage, error) {
			return g.daikin.GetDevice(ctx, deviceID)
		})
		if err != nil {
			return err
		}
		deviceRaw = raw
	}

	plan, err := climate.PlanCommand(cmd, deviceRaw)
	if err != nil {
		return err
	}

	_, err = withAuthRetry(ctx, g, core.ProviderDaikin, func() (struct{}, error) {
		return struct{}{}, g.daikin.SendCharacteristic(ctx, deviceID, plan.Characteristic, plan.Body)
	})
	if err != nil {
		return err
	}

	g.logger.Info("Command dispatched",
		"component", "gateway",
		"provider", core.ProviderDaikin,
		"device_id", deviceID,
		"characteristic", plan.Characteristic,
	)
	return nil
}

func (g *Gateway) sendNetatmoCommand(ctx context.Context, target Target, cmd core.DeviceCommand) error {
	state := netatmo.RoomState{
		HomeID: target.HomeID,
		RoomID: target.RoomID,
	}

	switch cmd.Kind {
	case core.CommandMode:
		state.Mode = cmd.Mode
	case core.CommandTemperature:
		state.Mode = netatmo.ModeManual
		state.Temperature = &cmd.Temperature
	default:
		return fmt.Errorf("command %q is not supported for netatmo thermostats", cmd.Kind)
	}

	_, err := withAuthRetry(ctx, g, core.ProviderNetatmo, func() (json.RawMessage, error) {
		return g.netatmo.SetRoomState(ctx, state)
	})
	return err
}

// SetRoomState applies a full room setpoint change, including the manual
// end time the generic command surface does not carry.
func (g *Gateway) SetRoomState(ctx context.Context, state netatmo.RoomState) (json.RawMessage, error) {
	return withAuthRetry(ctx, g, core.ProviderNetatmo, func() (json.RawMessage, error) {
		return g.netatmo.SetRoomState(ctx, state)
	})
}

// BoostResult reports the boost step that was applied.
type BoostResult struct {
	Step            boost.Step      `json:"step"`
	DurationMinutes int             `json:"durationMinutes"`
	CallIndex       int64           `json:"callIndex"`
	Message         string          `json:"message"`
	Response        json.RawMessage `json:"response,omitempty"`
}

// BoostRoom advances the room's boost cycle by one step and applies the
// resulting room state. Each (home, room) pair cycles independently.
func (g *Gateway) BoostRoom(ctx context.Context, homeID, roomID string, requested *float64) (*BoostResult, error) {
	missing := make([]string, 0, 2)
	if homeID == "" {
		missing = append(missing, "homeId")
	}
	if roomID == "" {
		missing = append(missing, "roomId")
	}
	if len(missing) > 0 {
		return nil, &core.MissingParametersError{Params: missing}
	}

	index, err := g.boosts.NextBoostIndex(ctx, homeID, roomID)
	if err != nil {
		return nil, err
	}

	decision := boost.Decide(index, requested, g.now())

	resp, err := withAuthRetry(ctx, g, core.ProviderNetatmo, func() (json.RawMessage, error) {
		return g.netatmo.SetRoomState(ctx, netatmo.RoomState{
			HomeID:      homeID,
			RoomID:      roomID,
			Mode:        decision.Mode,
			Temperature: decision.Temperature,
			EndTime:     decision.EndTime,
		})
	})
	if err != nil {
		return nil, err
	}

	result := &BoostResult{
		Step:            decision.Step,
		DurationMinutes: decision.DurationMinutes,
		CallIndex:       index,
		Response:        resp,
	}
	if decision.Step == boost.StepReset {
		result.Message = "Heating returned to the home schedule"
	} else {
		result.Message = fmt.Sprintf("Heating boosted for %d minutes", decision.DurationMinutes)
	}

	g.logger.Info("Boost step applied",
		"component", "gateway",
		"home_id", homeID,
		"room_id", roomID,
		"step", decision.Step,
		"call_index", index,
	)

	return result, nil
}

// Schedule operations pass through to the Netatmo adapter so the route
// layer only ever talks to the gateway.

func (g *Gateway) SwitchSchedule(ctx context.Context, homeID, scheduleID string) (json.RawMessage, error) {
	return withAuthRetry(ctx, g, core.ProviderNetatmo, func() (json.RawMessage, error) {
		return g.netatmo.SwitchSchedule(ctx, homeID, scheduleID)
	})
}

func (g *Gateway) SyncSchedule(ctx context.Context, req netatmo.SyncScheduleRequest) (json.RawMessage, error) {
	return withAuthRetry(ctx, g, core.ProviderNetatmo, func() (json.RawMessage, error) {
		return g.netatmo.SyncSchedule(ctx, req)
	})
}

func (g *Gateway) CreateSchedule(ctx context.Context, req netatmo.CreateScheduleRequest) (json.RawMessage, error) {
	return withAuthRetry(ctx, g, core.ProviderNetatmo, func() (json.RawMessage, error) {
		return g.netatmo.CreateSchedule(ctx, req)
	})
}

func (g *Gateway) SwitchHomeSchedule(ctx context.Context, homeID, scheduleID string, selected *bool) (json.RawMessage, error) {
	return withAuthRetry(ctx, g, core.ProviderNetatmo, func() (json.RawMessage, error) {
		return g.netatmo.SwitchHomeSchedule(ctx, homeID, scheduleID, selected)
	})
}
