package core

import "fmt"

// Provider identifies a third-party cloud service.
type Provider string

const (
	ProviderDaikin  Provider = "daikin"
	ProviderNetatmo Provider = "netatmo"
)

// Valid reports whether the provider is one of the supported services.
func (p Provider) Valid() bool {
	return p == ProviderDaikin || p == ProviderNetatmo
}

// CommandKind discriminates the DeviceCommand union.
type CommandKind string

const (
	CommandOnOff       CommandKind = "onOff"
	CommandMode        CommandKind = "mode"
	CommandTemperature CommandKind = "temperature"
	CommandFanSpeed    CommandKind = "fanSpeed"
)

// DeviceCommand is a provider-agnostic device command. Exactly one of the
// value fields is meaningful, selected by Kind. Commands are built by the
// gateway from inbound requests and consumed once by a provider adapter.
type DeviceCommand struct {
	Kind        CommandKind
	On          bool
	Mode        string
	Temperature float64
	FanSpeed    int
}

// Validate checks the command value ranges before dispatch.
func (c DeviceCommand) Validate() error {
	switch c.Kind {
	case CommandOnOff:
		return nil
	case CommandMode:
		if c.Mode == "" {
			return &MissingParametersError{Params: []string{"mode"}}
		}
		return nil
	case CommandTemperature:
		return nil
	case CommandFanSpeed:
		if c.FanSpeed < 1 || c.FanSpeed > 3 {
			return fmt.Errorf("fan speed must be between 1 and 3, got %d", c.FanSpeed)
		}
		return nil
	default:
		return fmt.Errorf("unknown command kind: %q", c.Kind)
	}
}
