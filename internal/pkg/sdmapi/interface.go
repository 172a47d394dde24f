package sdmapi

import (
	"context"
	"encoding/json"
	"strings"
)

// ParentRelation links a device to the room or structure it is assigned to
type ParentRelation struct {
	Parent      string `json:"parent"`
	DisplayName string `json:"displayName"`
}

// RawDevice is a device resource as returned by the SDM API.  Traits are
// left undecoded, keyed by their domain name.
type RawDevice struct {
	Name            string                     `json:"name"`
	Type            string                     `json:"type"`
	Traits          map[string]json.RawMessage `json:"traits"`
	ParentRelations []ParentRelation           `json:"parentRelations,omitempty"`
}

// ID returns the short device ID encoded in the resource name
func (d RawDevice) ID() string {
	return DeviceIDFromName(d.Name)
}

// DeviceIDFromName returns the final path segment of a resource name, eg.
// enterprises/project/devices/123 -> 123
func DeviceIDFromName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}

	return name
}

// TokenProvider supplies a current bearer token for each API call
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// DeviceGetter fetches a single device snapshot
type DeviceGetter interface {
	GetDevice(ctx context.Context, deviceID string) (*RawDevice, error)
}

// CommandExecutor sends a command to a device
type CommandExecutor interface {
	ExecuteCommand(ctx context.Context, deviceID string, command Command) error
}

// SmartDeviceManagement is the subset of the SDM API used by this module
type SmartDeviceManagement interface {
	DeviceGetter
	CommandExecutor
	Devices(ctx context.Context) ([]RawDevice, error)
	Do(ctx context.Context, method string, path string, body interface{}) (json.RawMessage, error)
}
