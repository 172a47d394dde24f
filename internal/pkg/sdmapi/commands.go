package sdmapi

import (
	"fmt"
	"time"
)

// Fully qualified SDM command names
const (
	CommandFanSetTimer      = "sdm.devices.commands.Fan.SetTimer"
	CommandEcoSetMode       = "sdm.devices.commands.ThermostatEco.SetMode"
	CommandModeSetMode      = "sdm.devices.commands.ThermostatMode.SetMode"
	CommandSetpointSetHeat  = "sdm.devices.commands.ThermostatTemperatureSetpoint.SetHeat"
	CommandSetpointSetCool  = "sdm.devices.commands.ThermostatTemperatureSetpoint.SetCool"
	CommandSetpointSetRange = "sdm.devices.commands.ThermostatTemperatureSetpoint.SetRange"
)

// Command is a named mutating request.  The value itself marshals to the
// command's params object.
type Command interface {
	Name() string
}

type command struct {
	command string
}

func newCommand(name string) command {
	return command{
		command: name,
	}
}

func (c command) Name() string {
	return c.command
}

type fanTimerCommandParams struct {
	command
	TimerMode string `json:"timerMode"`
	Duration  string `json:"duration,omitempty"`
}

// NewFanTimerCommand starts (mode ON) or stops the fan timer.  The duration is
// sent in whole seconds, and left out when stopping the timer or when zero.
func NewFanTimerCommand(mode string, duration time.Duration) Command {
	var durString string
	if mode != "OFF" && duration > 0 {
		durString = fmt.Sprintf("%.0fs", duration.Seconds())
	}

	return fanTimerCommandParams{
		command:   newCommand(CommandFanSetTimer),
		TimerMode: mode,
		Duration:  durString,
	}
}

type modeCommandParams struct {
	command
	Mode string `json:"mode"`
}

func NewThermostatEcoModeCommand(mode string) Command {
	return modeCommandParams{
		command: newCommand(CommandEcoSetMode),
		Mode:    mode,
	}
}

func NewThermostatModeCommand(mode string) Command {
	return modeCommandParams{
		command: newCommand(CommandModeSetMode),
		Mode:    mode,
	}
}

type setHeatCommandParams struct {
	command
	HeatCelsius float64 `json:"heatCelsius"`
}

type setCoolCommandParams struct {
	command
	CoolCelsius float64 `json:"coolCelsius"`
}

type setRangeCommandParams struct {
	command
	HeatCelsius float64 `json:"heatCelsius"`
	CoolCelsius float64 `json:"coolCelsius"`
}

func NewSetHeatCommand(heatCelsius float64) Command {
	return setHeatCommandParams{
		command:     newCommand(CommandSetpointSetHeat),
		HeatCelsius: heatCelsius,
	}
}

func NewSetCoolCommand(coolCelsius float64) Command {
	return setCoolCommandParams{
		command:     newCommand(CommandSetpointSetCool),
		CoolCelsius: coolCelsius,
	}
}

func NewSetRangeCommand(heatCelsius, coolCelsius float64) Command {
	return setRangeCommandParams{
		command:     newCommand(CommandSetpointSetRange),
		HeatCelsius: heatCelsius,
		CoolCelsius: coolCelsius,
	}
}
