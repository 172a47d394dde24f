package traits

// Read-only traits

const (
	ConnectivityOnline  = "ONLINE"
	ConnectivityOffline = "OFFLINE"

	ScaleCelsius    = "CELSIUS"
	ScaleFahrenheit = "FAHRENHEIT"

	HvacOff     = "OFF"
	HvacHeating = "HEATING"
	HvacCooling = "COOLING"

	defaultDisplayName = "Thermostat"
)

type Connectivity struct {
	device
	Status string
}

func decodeConnectivity(deviceID string, fields object) Trait {
	return &Connectivity{
		device: device{deviceID},
		Status: fields.stringOr("status", ConnectivityOffline),
	}
}

func (*Connectivity) Kind() Kind { return KindConnectivity }

func (t *Connectivity) IsOnline() bool {
	return t.Status == ConnectivityOnline
}

type Humidity struct {
	device
	AmbientHumidityPercent *float64
}

func decodeHumidity(deviceID string, fields object) Trait {
	return &Humidity{
		device:                 device{deviceID},
		AmbientHumidityPercent: fields.numberField("ambientHumidityPercent"),
	}
}

func (*Humidity) Kind() Kind { return KindHumidity }

// Info carries the user-assigned device name
type Info struct {
	device
	CustomName string
}

func decodeInfo(deviceID string, fields object) Trait {
	return &Info{
		device:     device{deviceID},
		CustomName: fields.stringOr("customName", defaultDisplayName),
	}
}

func (*Info) Kind() Kind { return KindInfo }

type Settings struct {
	device
	TemperatureScale string
}

func decodeSettings(deviceID string, fields object) Trait {
	return &Settings{
		device:           device{deviceID},
		TemperatureScale: fields.stringOr("temperatureScale", ScaleCelsius),
	}
}

func (*Settings) Kind() Kind { return KindSettings }

type Temperature struct {
	device
	AmbientTemperatureCelsius *float64
}

func decodeTemperature(deviceID string, fields object) Trait {
	return &Temperature{
		device:                    device{deviceID},
		AmbientTemperatureCelsius: fields.numberField("ambientTemperatureCelsius"),
	}
}

func (*Temperature) Kind() Kind { return KindTemperature }

// ThermostatHvac reports whether the HVAC is running
type ThermostatHvac struct {
	device
	Status string
}

func decodeThermostatHvac(deviceID string, fields object) Trait {
	return &ThermostatHvac{
		device: device{deviceID},
		Status: fields.stringOr("status", HvacOff),
	}
}

func (*ThermostatHvac) Kind() Kind { return KindThermostatHvac }

// IsActive is true for any status other than OFF, ie. HEATING or COOLING
func (t *ThermostatHvac) IsActive() bool {
	return t.Status != HvacOff
}
