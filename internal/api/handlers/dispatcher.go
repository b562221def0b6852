package handlers

import (
	"context"
	"encoding/json"

	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/core"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/gateway"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/providers/netatmo"
)

// Dispatcher is the gateway surface the device and thermostat routes
// consume. Implemented by gateway.Gateway.
type Dispatcher interface {
	ListDevices(ctx context.Context, provider core.Provider) (json.RawMessage, error)
	GetStatus(ctx context.Context, provider core.Provider, target gateway.Target) (any, error)
	SendCommand(ctx context.Context, provider core.Provider, target gateway.Target, cmd core.DeviceCommand) error
	SetRoomState(ctx context.Context, state netatmo.RoomState) (json.RawMessage, error)
	BoostRoom(ctx context.Context, homeID, roomID string, requested *float64) (*gateway.BoostResult, error)
	SwitchSchedule(ctx context.Context, homeID, scheduleID string) (json.RawMessage, error)
	SyncSchedule(ctx context.Context, req netatmo.SyncScheduleRequest) (json.RawMessage, error)
	CreateSchedule(ctx context.Context, req netatmo.CreateScheduleRequest) (json.RawMessage, error)
	SwitchHomeSchedule(ctx context.Context, homeID, scheduleID string, selected *bool) (json.RawMessage, error)
}
