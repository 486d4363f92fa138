package switcher

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dohr-michael/umbra/internal/config"
	"github.com/dohr-michael/umbra/internal/geo"
	"github.com/dohr-michael/umbra/internal/schedule"
)

// ErrUnknownCommand is returned by DecodeCommand for unrecognised names.
var ErrUnknownCommand = errors.New("switcher: unknown command")

// Command names as used on the wire.
const (
	CmdCheck        = "check"
	CmdForceDay     = "force_day"
	CmdForceNight   = "force_night"
	CmdPreview      = "preview"
	CmdEnable       = "enable"
	CmdDisable      = "disable"
	CmdTestLocation = "test_location"
)

// Command is one of the closed set of requests a Switcher executes.
type Command interface {
	Name() string
	isCommand()
}

// CheckNow evaluates the schedule and applies on change.
type CheckNow struct{}

// ForceDay applies the day mode regardless of the schedule.
type ForceDay struct{}

// ForceNight applies the night mode regardless of the schedule.
type ForceNight struct{}

// Preview applies the mode of Period, then reverts after Duration.
type Preview struct {
	Period   schedule.Period `json:"period"`
	Duration config.Duration `json:"duration,omitempty"`
}

// Enable turns automatic switching on and checks immediately.
type Enable struct{}

// Disable turns automatic switching off.
type Disable struct{}

// TestLocation evaluates the schedule for the given coordinates without
// applying anything.
type TestLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (CheckNow) Name() string     { return CmdCheck }
func (ForceDay) Name() string     { return CmdForceDay }
func (ForceNight) Name() string   { return CmdForceNight }
func (Preview) Name() string      { return CmdPreview }
func (Enable) Name() string       { return CmdEnable }
func (Disable) Name() string      { return CmdDisable }
func (TestLocation) Name() string { return CmdTestLocation }

func (CheckNow) isCommand()     {}
func (ForceDay) isCommand()     {}
func (ForceNight) isCommand()   {}
func (Preview) isCommand()      {}
func (Enable) isCommand()       {}
func (Disable) isCommand()      {}
func (TestLocation) isCommand() {}

// Coordinates returns the coordinates under test.
func (c TestLocation) Coordinates() geo.Coordinates {
	return geo.Coordinates{Latitude: c.Latitude, Longitude: c.Longitude}
}

// DecodeCommand builds a Command from its wire name and optional JSON
// params.
func DecodeCommand(name string, params json.RawMessage) (Command, error) {
	switch name {
	case CmdCheck:
		return CheckNow{}, nil
	case CmdForceDay:
		return ForceDay{}, nil
	case CmdForceNight:
		return ForceNight{}, nil
	case CmdEnable:
		return Enable{}, nil
	case CmdDisable:
		return Disable{}, nil
	case CmdPreview:
		var p Preview
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		if !p.Period.Valid() {
			return nil, fmt.Errorf("preview: period must be %q or %q, got %q", schedule.Day, schedule.Night, p.Period)
		}
		if p.Duration < 0 {
			return nil, fmt.Errorf("preview: duration must not be negative")
		}
		return p, nil
	case CmdTestLocation:
		var p TestLocation
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		if err := p.Coordinates().Validate(); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
}

func decodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}
