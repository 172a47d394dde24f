package thermostat

import (
	"github.com/go-openapi/swag"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/traits"
)

// Status is a point-in-time copy of a thermostat view, for printing and for
// the status server.  Temperatures are in Celsius whatever the display scale.
type Status struct {
	DeviceID         string `json:"deviceId"`
	Name             string `json:"name"`
	DisplayName      string `json:"displayName"`
	Room             string `json:"room,omitempty"`
	Connected        bool   `json:"connected"`
	TemperatureScale string `json:"temperatureScale"`

	AmbientTemperatureCelsius *float64 `json:"ambientTemperatureCelsius"`
	HumidityPercent           *float64 `json:"humidityPercent"`

	Mode           string   `json:"mode"`
	AvailableModes []string `json:"availableModes"`
	HeatCelsius    *float64 `json:"heatCelsius"`
	CoolCelsius    *float64 `json:"coolCelsius"`
	HvacStatus     string   `json:"hvacStatus"`

	EcoMode           string   `json:"ecoMode"`
	EcoAvailableModes []string `json:"ecoAvailableModes"`
	EcoHeatCelsius    *float64 `json:"ecoHeatCelsius"`
	EcoCoolCelsius    *float64 `json:"ecoCoolCelsius"`

	FanTimerMode    string `json:"fanTimerMode,omitempty"`
	FanTimerTimeout string `json:"fanTimerTimeout,omitempty"`
}

// Snapshot copies the current state of the view
func (t *Thermostat) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := t.traits
	return Status{
		DeviceID:         s.DeviceID(),
		Name:             t.name,
		DisplayName:      s.Info().CustomName,
		Room:             t.room,
		Connected:        s.Connectivity().IsOnline(),
		TemperatureScale: s.Settings().TemperatureScale,

		AmbientTemperatureCelsius: copyFloat(s.Temperature().AmbientTemperatureCelsius),
		HumidityPercent:           copyFloat(s.Humidity().AmbientHumidityPercent),

		Mode:           s.ThermostatMode().Mode,
		AvailableModes: copyStrings(s.ThermostatMode().AvailableModes),
		HeatCelsius:    copyFloat(s.ThermostatTemperatureSetpoint().HeatCelsius),
		CoolCelsius:    copyFloat(s.ThermostatTemperatureSetpoint().CoolCelsius),
		HvacStatus:     s.ThermostatHvac().Status,

		EcoMode:           s.ThermostatEco().Mode,
		EcoAvailableModes: copyStrings(s.ThermostatEco().AvailableModes),
		EcoHeatCelsius:    copyFloat(s.ThermostatEco().HeatCelsius),
		EcoCoolCelsius:    copyFloat(s.ThermostatEco().CoolCelsius),

		FanTimerMode:    s.Fan().TimerMode,
		FanTimerTimeout: s.Fan().TimerTimeout,
	}
}

// Display converts a Celsius value to the thermostat's display scale
func (s Status) Display(celsius *float64) *float64 {
	if celsius == nil {
		return nil
	}

	if s.TemperatureScale == traits.ScaleFahrenheit {
		return swag.Float64(swag.Float64Value(celsius)*9/5 + 32)
	}

	return copyFloat(celsius)
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	return swag.Float64(*f)
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
