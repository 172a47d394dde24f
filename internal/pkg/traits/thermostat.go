package traits

import (
	"context"
	"math"

	"github.com/go-openapi/swag"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/sdmapi"
)

const (
	ModeOff      = "OFF"
	ModeHeat     = "HEAT"
	ModeCool     = "COOL"
	ModeHeatCool = "HEATCOOL"

	EcoOff       = "OFF"
	EcoManualEco = "MANUAL_ECO"
)

// ThermostatEco holds the eco mode and the eco temperature limits
type ThermostatEco struct {
	device
	AvailableModes []string
	Mode           string
	HeatCelsius    *float64
	CoolCelsius    *float64
}

func decodeThermostatEco(deviceID string, fields object) Trait {
	return &ThermostatEco{
		device:         device{deviceID},
		AvailableModes: fields.stringsField("availableModes"),
		Mode:           fields.stringOr("mode", EcoOff),
		HeatCelsius:    fields.numberField("heatCelsius"),
		CoolCelsius:    fields.numberField("coolCelsius"),
	}
}

func (*ThermostatEco) Kind() Kind { return KindThermostatEco }

// ModeChange validates an eco mode, which must be one of AvailableModes
func (t *ThermostatEco) ModeChange(mode string) (Change, error) {
	if err := validateMode(KindThermostatEco, "mode", mode, t.AvailableModes); err != nil {
		return Change{}, err
	}

	return Change{
		Command: sdmapi.NewThermostatEcoModeCommand(mode),
		apply:   func() { t.Mode = mode },
	}, nil
}

// SetMode changes the eco mode
func (t *ThermostatEco) SetMode(ctx context.Context, d Dispatcher, mode string) (sdmapi.Result, error) {
	c, err := t.ModeChange(mode)
	return run(ctx, d, t.id, c, err)
}

type ThermostatMode struct {
	device
	Mode           string
	AvailableModes []string
}

func decodeThermostatMode(deviceID string, fields object) Trait {
	return &ThermostatMode{
		device:         device{deviceID},
		Mode:           fields.stringOr("mode", ModeOff),
		AvailableModes: fields.stringsField("availableModes"),
	}
}

func (*ThermostatMode) Kind() Kind { return KindThermostatMode }

// ModeChange validates a thermostat mode, which must be one of AvailableModes
func (t *ThermostatMode) ModeChange(mode string) (Change, error) {
	if err := validateMode(KindThermostatMode, "mode", mode, t.AvailableModes); err != nil {
		return Change{}, err
	}

	return Change{
		Command: sdmapi.NewThermostatModeCommand(mode),
		apply:   func() { t.Mode = mode },
	}, nil
}

func (t *ThermostatMode) SetMode(ctx context.Context, d Dispatcher, mode string) (sdmapi.Result, error) {
	c, err := t.ModeChange(mode)
	return run(ctx, d, t.id, c, err)
}

// ThermostatTemperatureSetpoint holds the target temperatures of the current mode
type ThermostatTemperatureSetpoint struct {
	device
	HeatCelsius *float64
	CoolCelsius *float64
}

func decodeThermostatTemperatureSetpoint(deviceID string, fields object) Trait {
	return &ThermostatTemperatureSetpoint{
		device:      device{deviceID},
		HeatCelsius: fields.numberField("heatCelsius"),
		CoolCelsius: fields.numberField("coolCelsius"),
	}
}

func (*ThermostatTemperatureSetpoint) Kind() Kind { return KindThermostatTemperatureSetpoint }

func validateCelsius(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &ValidationError{
			Trait:  KindThermostatTemperatureSetpoint,
			Field:  field,
			Value:  v,
			Reason: "not a number",
		}
	}
	return nil
}

func (t *ThermostatTemperatureSetpoint) HeatChange(celsius float64) (Change, error) {
	if err := validateCelsius("heatCelsius", celsius); err != nil {
		return Change{}, err
	}

	return Change{
		Command: sdmapi.NewSetHeatCommand(celsius),
		apply:   func() { t.HeatCelsius = swag.Float64(celsius) },
	}, nil
}

func (t *ThermostatTemperatureSetpoint) CoolChange(celsius float64) (Change, error) {
	if err := validateCelsius("coolCelsius", celsius); err != nil {
		return Change{}, err
	}

	return Change{
		Command: sdmapi.NewSetCoolCommand(celsius),
		apply:   func() { t.CoolCelsius = swag.Float64(celsius) },
	}, nil
}

// RangeChange sets both targets, for HEATCOOL mode
func (t *ThermostatTemperatureSetpoint) RangeChange(heatCelsius, coolCelsius float64) (Change, error) {
	if err := validateCelsius("heatCelsius", heatCelsius); err != nil {
		return Change{}, err
	}
	if err := validateCelsius("coolCelsius", coolCelsius); err != nil {
		return Change{}, err
	}

	return Change{
		Command: sdmapi.NewSetRangeCommand(heatCelsius, coolCelsius),
		apply: func() {
			t.HeatCelsius = swag.Float64(heatCelsius)
			t.CoolCelsius = swag.Float64(coolCelsius)
		},
	}, nil
}

func (t *ThermostatTemperatureSetpoint) SetHeat(ctx context.Context, d Dispatcher, celsius float64) (sdmapi.Result, error) {
	c, err := t.HeatChange(celsius)
	return run(ctx, d, t.id, c, err)
}

func (t *ThermostatTemperatureSetpoint) SetCool(ctx context.Context, d Dispatcher, celsius float64) (sdmapi.Result, error) {
	c, err := t.CoolChange(celsius)
	return run(ctx, d, t.id, c, err)
}

func (t *ThermostatTemperatureSetpoint) SetRange(ctx context.Context, d Dispatcher, heatCelsius, coolCelsius float64) (sdmapi.Result, error) {
	c, err := t.RangeChange(heatCelsius, coolCelsius)
	return run(ctx, d, t.id, c, err)
}
