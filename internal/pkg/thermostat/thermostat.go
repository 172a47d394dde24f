package thermostat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/sdmapi"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/traits"
)

// DeviceType is the SDM type of every device this view accepts
const DeviceType = "sdm.devices.types.THERMOSTAT"

// DeviceTypeError is returned when a device snapshot is not a thermostat
type DeviceTypeError struct {
	Name string
	Type string
}

func (e *DeviceTypeError) Error() string {
	return fmt.Sprintf("device %s has type %q, expected %q", e.Name, e.Type, DeviceType)
}

// Thermostat is a typed view over the latest snapshot of one thermostat.
// Every refresh rebuilds the whole view.
type Thermostat struct {
	mu     sync.RWMutex
	name   string
	room   string
	traits *traits.Set
}

// New builds a view from a device snapshot
func New(raw *sdmapi.RawDevice) (*Thermostat, error) {
	t := &Thermostat{}
	if err := t.Refresh(raw); err != nil {
		return nil, err
	}

	return t, nil
}

// Refresh replaces the view with one built from raw.  On error the previous
// state is kept.
func (t *Thermostat) Refresh(raw *sdmapi.RawDevice) error {
	if raw == nil {
		return errors.New("no device snapshot")
	}
	if raw.Type != DeviceType {
		return &DeviceTypeError{Name: raw.Name, Type: raw.Type}
	}

	set := traits.DecodeSet(raw.ID(), raw.Traits)

	var room string
	if len(raw.ParentRelations) > 0 {
		room = raw.ParentRelations[0].DisplayName
	}

	t.mu.Lock()
	t.name = raw.Name
	t.room = room
	t.traits = set
	t.mu.Unlock()

	return nil
}

// Update fetches the latest snapshot of this device and refreshes the view
func (t *Thermostat) Update(ctx context.Context, getter sdmapi.DeviceGetter) error {
	deviceID := t.DeviceID()

	raw, err := getter.GetDevice(ctx, deviceID)
	if err != nil {
		return errors.Wrapf(err, "updating thermostat %s", deviceID)
	}

	return t.Refresh(raw)
}

// read runs f with the current trait set under the read lock
func (t *Thermostat) read(f func(s *traits.Set)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f(t.traits)
}

// DeviceID is the final segment of the device resource name
func (t *Thermostat) DeviceID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.traits == nil {
		return ""
	}
	return t.traits.DeviceID()
}

// Name is the full device resource name
func (t *Thermostat) Name() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.name
}

// Room is the display name of the room the device is assigned to, if any
func (t *Thermostat) Room() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.room
}

// Traits returns the current trait set.  Refresh swaps in a new set, the
// mutators below change it in place.
func (t *Thermostat) Traits() *traits.Set {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.traits
}

func (t *Thermostat) IsConnected() (v bool) {
	t.read(func(s *traits.Set) { v = s.Connectivity().IsOnline() })
	return
}

func (t *Thermostat) FanTimerMode() (v string) {
	t.read(func(s *traits.Set) { v = s.Fan().TimerMode })
	return
}

func (t *Thermostat) FanTimerTimeout() (v string) {
	t.read(func(s *traits.Set) { v = s.Fan().TimerTimeout })
	return
}

func (t *Thermostat) Humidity() (v *float64) {
	t.read(func(s *traits.Set) { v = copyFloat(s.Humidity().AmbientHumidityPercent) })
	return
}

func (t *Thermostat) DisplayName() (v string) {
	t.read(func(s *traits.Set) { v = s.Info().CustomName })
	return
}

func (t *Thermostat) TemperatureScale() (v string) {
	t.read(func(s *traits.Set) { v = s.Settings().TemperatureScale })
	return
}

func (t *Thermostat) AmbientTemperature() (v *float64) {
	t.read(func(s *traits.Set) { v = copyFloat(s.Temperature().AmbientTemperatureCelsius) })
	return
}

func (t *Thermostat) EcoMode() (v string) {
	t.read(func(s *traits.Set) { v = s.ThermostatEco().Mode })
	return
}

func (t *Thermostat) EcoAvailableModes() (v []string) {
	t.read(func(s *traits.Set) { v = copyStrings(s.ThermostatEco().AvailableModes) })
	return
}

func (t *Thermostat) EcoHeatTarget() (v *float64) {
	t.read(func(s *traits.Set) { v = copyFloat(s.ThermostatEco().HeatCelsius) })
	return
}

func (t *Thermostat) EcoCoolTarget() (v *float64) {
	t.read(func(s *traits.Set) { v = copyFloat(s.ThermostatEco().CoolCelsius) })
	return
}

func (t *Thermostat) HvacStatus() (v string) {
	t.read(func(s *traits.Set) { v = s.ThermostatHvac().Status })
	return
}

func (t *Thermostat) Mode() (v string) {
	t.read(func(s *traits.Set) { v = s.ThermostatMode().Mode })
	return
}

func (t *Thermostat) AvailableModes() (v []string) {
	t.read(func(s *traits.Set) { v = copyStrings(s.ThermostatMode().AvailableModes) })
	return
}

func (t *Thermostat) HeatTarget() (v *float64) {
	t.read(func(s *traits.Set) { v = copyFloat(s.ThermostatTemperatureSetpoint().HeatCelsius) })
	return
}

func (t *Thermostat) CoolTarget() (v *float64) {
	t.read(func(s *traits.Set) { v = copyFloat(s.ThermostatTemperatureSetpoint().CoolCelsius) })
	return
}

/*
 * Mutators validate against the current view under the read lock and send
 * the command with no lock held.  The optimistic update is applied under the
 * write lock, and dropped if a refresh replaced the trait set while the
 * command was in flight.
 */

func (t *Thermostat) mutate(ctx context.Context, d traits.Dispatcher, prepare func(s *traits.Set) (traits.Change, error)) (sdmapi.Result, error) {
	t.mu.RLock()
	set := t.traits
	c, err := prepare(set)
	t.mu.RUnlock()
	if err != nil {
		return sdmapi.Result{}, err
	}

	res, err := d.Dispatch(ctx, set.DeviceID(), c.Command)
	if err != nil || !res.OK {
		return res, err
	}

	t.mu.Lock()
	if t.traits == set {
		c.Apply()
	}
	t.mu.Unlock()

	return res, nil
}

func (t *Thermostat) SetFanTimer(ctx context.Context, d traits.Dispatcher, mode string, duration time.Duration) (sdmapi.Result, error) {
	return t.mutate(ctx, d, func(s *traits.Set) (traits.Change, error) {
		return s.Fan().TimerChange(mode, duration)
	})
}

func (t *Thermostat) SetEcoMode(ctx context.Context, d traits.Dispatcher, mode string) (sdmapi.Result, error) {
	return t.mutate(ctx, d, func(s *traits.Set) (traits.Change, error) {
		return s.ThermostatEco().ModeChange(mode)
	})
}

func (t *Thermostat) SetMode(ctx context.Context, d traits.Dispatcher, mode string) (sdmapi.Result, error) {
	return t.mutate(ctx, d, func(s *traits.Set) (traits.Change, error) {
		return s.ThermostatMode().ModeChange(mode)
	})
}

func (t *Thermostat) SetHeat(ctx context.Context, d traits.Dispatcher, celsius float64) (sdmapi.Result, error) {
	return t.mutate(ctx, d, func(s *traits.Set) (traits.Change, error) {
		return s.ThermostatTemperatureSetpoint().HeatChange(celsius)
	})
}

func (t *Thermostat) SetCool(ctx context.Context, d traits.Dispatcher, celsius float64) (sdmapi.Result, error) {
	return t.mutate(ctx, d, func(s *traits.Set) (traits.Change, error) {
		return s.ThermostatTemperatureSetpoint().CoolChange(celsius)
	})
}

func (t *Thermostat) SetRange(ctx context.Context, d traits.Dispatcher, heatCelsius, coolCelsius float64) (sdmapi.Result, error) {
	return t.mutate(ctx, d, func(s *traits.Set) (traits.Change, error) {
		return s.ThermostatTemperatureSetpoint().RangeChange(heatCelsius, coolCelsius)
	})
}
