package climate

import (
	"encoding/json"
	"fmt"

	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/core"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/providers/daikin"
)

// defaultModes is the fallback when a device omits its operationMode values.
var defaultModes = []string{"auto", "cooling", "heating", "fanOnly", "dry"}

// Status is the flat display view of one climateControl management point.
// Temperature and fan fields are nil when the device does not expose them
// for the active mode.
type Status struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	OnOff               string   `json:"onOff"`
	Mode                string   `json:"mode"`
	RoomTemperature     *float64 `json:"roomTemperature"`
	SetpointTemperature *float64 `json:"setpointTemperature"`
	FanSpeed            *int     `json:"fanSpeed"`
	AvailableModes      []string `json:"availableModes"`
}

// Raw device tree shapes. Only the fields the normalizer interprets are
// declared; everything else passes through untouched.

type device struct {
	ID               string            `json:"id"`
	ManagementPoints []managementPoint `json:"managementPoints"`
}

type managementPoint struct {
	ManagementPointType string          `json:"managementPointType"`
	Name                *stringValue    `json:"name"`
	OnOffMode           *stringValue    `json:"onOffMode"`
	OperationMode       *operationMode  `json:"operationMode"`
	SensoryData         *sensoryData    `json:"sensoryData"`
	TemperatureControl  *nestedControl  `json:"temperatureControl"`
	FanControl          *nestedControl  `json:"fanControl"`
}

type stringValue struct {
	Value string `json:"value"`
}

type operationMode struct {
	Value  string   `json:"value"`
	Values []string `json:"values"`
}

type sensoryData struct {
	Value struct {
		RoomTemperature *struct {
			Value float64 `json:"value"`
		} `json:"roomTemperature"`
	} `json:"value"`
}

// nestedControl keeps the mode-scoped subtree generic: temperature and fan
// targets live under operationModes/<activeMode>/..., and sibling structure
// must be preserved when writing back.
type nestedControl struct {
	Value struct {
		OperationModes map[string]json.RawMessage `json:"operationModes"`
	} `json:"value"`
}

// Flatten projects a raw Daikin device tree onto the flat Status view.
// Returns core.ErrNotFound when the device has no climateControl point.
func Flatten(raw json.RawMessage) (*Status, error) {
	var dev device
	if err := json.Unmarshal(raw, &dev); err != nil {
		return nil, fmt.Errorf("failed to parse device tree: %w", err)
	}

	cc := findClimateControl(&dev)
	if cc == nil {
		return nil, core.ErrNotFound
	}

	mode := "auto"
	if cc.OperationMode != nil && cc.OperationMode.Value != "" {
		mode = cc.OperationMode.Value
	}

	status := &Status{
		ID:             dev.ID,
		Mode:           mode,
		OnOff:          "off",
		AvailableModes: defaultModes,
	}
	if cc.Name != nil {
		status.Name = cc.Name.Value
	}
	if cc.OnOffMode != nil && cc.OnOffMode.Value != "" {
		status.OnOff = cc.OnOffMode.Value
	}
	if cc.OperationMode != nil && len(cc.OperationMode.Values) > 0 {
		status.AvailableModes = cc.OperationMode.Values
	}
	if cc.SensoryData != nil && cc.SensoryData.Value.RoomTemperature != nil {
		t := cc.SensoryData.Value.RoomTemperature.Value
		status.RoomTemperature = &t
	}

	status.SetpointTemperature = setpointTemperature(cc, mode)
	status.FanSpeed = fanSpeed(cc, mode)

	return status, nil
}

// FlattenList projects a raw device list, skipping devices without a
// climateControl management point.
func FlattenList(raw json.RawMessage) ([]Status, error) {
	var devices []json.RawMessage
	if err := json.Unmarshal(raw, &devices); err != nil {
		return nil, fmt.Errorf("failed to parse device list: %w", err)
	}

	statuses := make([]Status, 0, len(devices))
	for _, d := range devices {
		status, err := Flatten(d)
		if err != nil {
			continue
		}
		statuses = append(statuses, *status)
	}
	return statuses, nil
}

// ActiveMode returns the device's current operation mode. Temperature and
// fan-speed writes are scoped to it.
func ActiveMode(raw json.RawMessage) (string, error) {
	var dev device
	if err := json.Unmarshal(raw, &dev); err != nil {
		return "", fmt.Errorf("failed to parse device tree: %w", err)
	}

	cc := findClimateControl(&dev)
	if cc == nil || cc.OperationMode == nil || cc.OperationMode.Value == "" {
		return "", fmt.Errorf("device has no active operation mode")
	}

	return cc.OperationMode.Value, nil
}

// Plan describes the one adapter call that realizes a command.
type Plan struct {
	Characteristic string
	Body           any
}

// PlanCommand translates a provider-agnostic command into the Daikin
// characteristic PATCH realizing it. deviceRaw is the device's current
// status tree; it is required for temperature and fan-speed commands,
// whose targets are scoped to the active operation mode.
func PlanCommand(cmd core.DeviceCommand, deviceRaw json.RawMessage) (*Plan, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	switch cmd.Kind {
	case core.CommandOnOff:
		value := "off"
		if cmd.On {
			value = "on"
		}
		return &Plan{
			Characteristic: daikin.CharacteristicOnOffMode,
			Body:           map[string]any{"value": value},
		}, nil

	case core.CommandMode:
		return &Plan{
			Characteristic: daikin.CharacteristicOperationMode,
			Body:           map[string]any{"value": cmd.Mode},
		}, nil

	case core.CommandTemperature:
		mode, err := ActiveMode(deviceRaw)
		if err != nil {
			return nil, err
		}
		return &Plan{
			Characteristic: daikin.CharacteristicTemperatureControl,
			Body: map[string]any{
				"value": cmd.Temperature,
				"path":  fmt.Sprintf("/operationModes/%s/setpoints/roomTemperature", mode),
			},
		}, nil

	case core.CommandFanSpeed:
		mode, err := ActiveMode(deviceRaw)
		if err != nil {
			return nil, err
		}
		body, err := fanSpeedBody(deviceRaw, mode, cmd.FanSpeed)
		if err != nil {
			return nil, err
		}
		return &Plan{
			Characteristic: daikin.CharacteristicFanControl,
			Body:           body,
		}, nil

	default:
		return nil, fmt.Errorf("unknown command kind: %q", cmd.Kind)
	}
}

// fanSpeedBody builds the full nested fanControl envelope. The provider
// rejects partial payloads, so the current mode subtree is copied from the
// device's status and only the fixed-speed leaves are overwritten.
func fanSpeedBody(deviceRaw json.RawMessage, mode string, speed int) (map[string]any, error) {
	var dev device
	if err := json.Unmarshal(deviceRaw, &dev); err != nil {
		return nil, fmt.Errorf("failed to parse device tree: %w", err)
	}

	fanSpeedTree := map[string]any{}
	if cc := findClimateControl(&dev); cc != nil && cc.FanControl != nil {
		if modeRaw, ok := cc.FanControl.Value.OperationModes[mode]; ok {
			var modeTree struct {
				FanSpeed map[string]any `json:"fanSpeed"`
			}
			if err := json.Unmarshal(modeRaw, &modeTree); err == nil && modeTree.FanSpeed != nil {
				fanSpeedTree = modeTree.FanSpeed
			}
		}
	}

	fanSpeedTree["currentMode"] = map[string]any{"value": "fixed"}

	modes, ok := fanSpeedTree["modes"].(map[string]any)
	if !ok {
		modes = map[string]any{}
		fanSpeedTree["modes"] = modes
	}
	fixed, ok := modes["fixed"].(map[string]any)
	if !ok {
		fixed = map[string]any{}
		modes["fixed"] = fixed
	}
	fixed["value"] = speed

	return map[string]any{
		"value": map[string]any{
			"operationModes": map[string]any{
				mode: map[string]any{
					"fanSpeed": fanSpeedTree,
				},
			},
		},
	}, nil
}

func findClimateControl(dev *device) *managementPoint {
	for i := range dev.ManagementPoints {
		if dev.ManagementPoints[i].ManagementPointType == "climateControl" {
			return &dev.ManagementPoints[i]
		}
	}
	return nil
}

func setpointTemperature(cc *managementPoint, mode string) *float64 {
	if cc.TemperatureControl == nil {
		return nil
	}
	modeRaw, ok := cc.TemperatureControl.Value.OperationModes[mode]
	if !ok {
		return nil
	}

	var modeTree struct {
		Setpoints struct {
			RoomTemperature *struct {
				Value float64 `json:"value"`
			} `json:"roomTemperature"`
		} `json:"setpoints"`
	}
	if err := json.Unmarshal(modeRaw, &modeTree); err != nil || modeTree.Setpoints.RoomTemperature == nil {
		return nil
	}

	t := modeTree.Setpoints.RoomTemperature.Value
	return &t
}

func fanSpeed(cc *managementPoint, mode string) *int {
	if cc.FanControl == nil {
		return nil
	}
	modeRaw, ok := cc.FanControl.Value.OperationModes[mode]
	if !ok {
		return nil
	}

	var modeTree struct {
		FanSpeed struct {
			Modes struct {
				Fixed *struct {
					Value int `json:"value"`
				} `json:"fixed"`
			} `json:"modes"`
		} `json:"fanSpeed"`
	}
	if err := json.Unmarshal(modeRaw, &modeTree); err != nil || modeTree.FanSpeed.Modes.Fixed == nil {
		return nil
	}

	speed := modeTree.FanSpeed.Modes.Fixed.Value
	return &speed
}
