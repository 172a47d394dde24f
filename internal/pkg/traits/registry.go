package traits

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/logging"
)

// Kind is one of the device traits this package knows how to decode
type Kind int

const (
	KindConnectivity Kind = iota
	KindFan
	KindHumidity
	KindInfo
	KindSettings
	KindTemperature
	KindThermostatEco
	KindThermostatHvac
	KindThermostatMode
	KindThermostatTemperatureSetpoint

	kindCount
)

const keyPrefix = "sdm.devices.traits."

// Trait is a decoded trait instance
type Trait interface {
	Kind() Kind
	DeviceID() string
}

// device addresses a trait's commands
type device struct {
	id string
}

func (d device) DeviceID() string {
	return d.id
}

type descriptor struct {
	name   string
	decode func(deviceID string, fields object) Trait
}

// Indexed by Kind
var descriptors = [kindCount]descriptor{
	KindConnectivity:                  {"Connectivity", decodeConnectivity},
	KindFan:                           {"Fan", decodeFan},
	KindHumidity:                      {"Humidity", decodeHumidity},
	KindInfo:                          {"Info", decodeInfo},
	KindSettings:                      {"Settings", decodeSettings},
	KindTemperature:                   {"Temperature", decodeTemperature},
	KindThermostatEco:                 {"ThermostatEco", decodeThermostatEco},
	KindThermostatHvac:                {"ThermostatHvac", decodeThermostatHvac},
	KindThermostatMode:                {"ThermostatMode", decodeThermostatMode},
	KindThermostatTemperatureSetpoint: {"ThermostatTemperatureSetpoint", decodeThermostatTemperatureSetpoint},
}

func (k Kind) valid() bool {
	return k >= 0 && k < kindCount
}

// Name returns the short trait name, eg. ThermostatMode
func (k Kind) Name() string {
	if !k.valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return descriptors[k].name
}

// Key returns the domain key of the trait, eg. sdm.devices.traits.ThermostatMode
func (k Kind) Key() string {
	return keyPrefix + k.Name()
}

func (k Kind) String() string {
	return k.Name()
}

// Kinds returns every known trait kind, in declaration order
func Kinds() []Kind {
	kinds := make([]Kind, kindCount)
	for i := range kinds {
		kinds[i] = Kind(i)
	}
	return kinds
}

// ParseKind maps a domain key to its Kind
func ParseKind(key string) (Kind, bool) {
	if !strings.HasPrefix(key, keyPrefix) {
		return 0, false
	}

	name := strings.TrimPrefix(key, keyPrefix)
	for k, d := range descriptors {
		if d.name == name {
			return Kind(k), true
		}
	}

	return 0, false
}

// Decode builds a trait of the given kind from its raw JSON payload.  A
// missing or malformed payload gives a trait holding its defaults.  A kind
// outside Kinds() gives nil.
func Decode(kind Kind, deviceID string, raw json.RawMessage) Trait {
	if !kind.valid() {
		return nil
	}

	return descriptors[kind].decode(deviceID, decodeObject(kind, raw))
}

// Set holds exactly one trait of every kind for one device
type Set struct {
	deviceID string
	traits   [kindCount]Trait
}

// DecodeSet decodes every known trait from a device's trait map.  Kinds that
// are not in the map get their defaults; keys of unknown traits are skipped.
func DecodeSet(deviceID string, raw map[string]json.RawMessage) *Set {
	s := &Set{deviceID: deviceID}

	for _, kind := range Kinds() {
		s.traits[kind] = Decode(kind, deviceID, raw[kind.Key()])
	}

	var unknown []string
	for key := range raw {
		if _, ok := ParseKind(key); !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		logging.Logger(nil).Debugf("Device %s: ignoring unsupported traits %v", deviceID, unknown)
	}

	return s
}

func (s *Set) DeviceID() string {
	return s.deviceID
}

// Get returns the trait of the given kind
func (s *Set) Get(kind Kind) Trait {
	return s.traits[kind]
}

func (s *Set) Connectivity() *Connectivity {
	return s.traits[KindConnectivity].(*Connectivity)
}

func (s *Set) Fan() *Fan {
	return s.traits[KindFan].(*Fan)
}

func (s *Set) Humidity() *Humidity {
	return s.traits[KindHumidity].(*Humidity)
}

func (s *Set) Info() *Info {
	return s.traits[KindInfo].(*Info)
}

func (s *Set) Settings() *Settings {
	return s.traits[KindSettings].(*Settings)
}

func (s *Set) Temperature() *Temperature {
	return s.traits[KindTemperature].(*Temperature)
}

func (s *Set) ThermostatEco() *ThermostatEco {
	return s.traits[KindThermostatEco].(*ThermostatEco)
}

func (s *Set) ThermostatHvac() *ThermostatHvac {
	return s.traits[KindThermostatHvac].(*ThermostatHvac)
}

func (s *Set) ThermostatMode() *ThermostatMode {
	return s.traits[KindThermostatMode].(*ThermostatMode)
}

func (s *Set) ThermostatTemperatureSetpoint() *ThermostatTemperatureSetpoint {
	return s.traits[KindThermostatTemperatureSetpoint].(*ThermostatTemperatureSetpoint)
}
