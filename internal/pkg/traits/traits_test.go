package traits

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/sdmapi"
)

type stubDispatcher struct {
	result   sdmapi.Result
	err      error
	calls    int
	deviceID string
	last     sdmapi.Command
}

func (s *stubDispatcher) Dispatch(ctx context.Context, deviceID string, cmd sdmapi.Command) (sdmapi.Result, error) {
	s.calls++
	s.deviceID = deviceID
	s.last = cmd
	return s.result, s.err
}

func okDispatcher() *stubDispatcher {
	return &stubDispatcher{result: sdmapi.Result{OK: true, Message: "success"}}
}

func TestKinds(t *testing.T) {
	kinds := Kinds()
	require.Len(t, kinds, 10)

	for _, k := range kinds {
		parsed, ok := ParseKind(k.Key())
		require.True(t, ok, k.Key())
		assert.Equal(t, k, parsed)
	}

	assert.Equal(t, "sdm.devices.traits.ThermostatTemperatureSetpoint", KindThermostatTemperatureSetpoint.Key())
	assert.Equal(t, "Fan", KindFan.String())

	_, ok := ParseKind("sdm.devices.traits.CameraLiveStream")
	assert.False(t, ok)
	_, ok = ParseKind("Fan")
	assert.False(t, ok)
}

func TestDecodeUnknownKind(t *testing.T) {
	for _, k := range []Kind{-1, kindCount, Kind(42)} {
		assert.NotPanics(t, func() {
			assert.Nil(t, Decode(k, "d", json.RawMessage(`{"mode": "HEAT"}`)))
		})
		assert.Equal(t, keyPrefix+k.Name(), k.Key())
	}
	assert.Equal(t, "Kind(42)", Kind(42).Name())
}

func TestDecodeAbsentDefaults(t *testing.T) {
	for _, raw := range []json.RawMessage{nil, json.RawMessage("null"), json.RawMessage(`"garbage"`), json.RawMessage("{}")} {
		s := DecodeSet("dev-1", map[string]json.RawMessage{
			KindConnectivity.Key(): raw,
		})

		for _, k := range Kinds() {
			tr := s.Get(k)
			require.NotNil(t, tr)
			assert.Equal(t, k, tr.Kind())
			assert.Equal(t, "dev-1", tr.DeviceID())
		}

		assert.Equal(t, ConnectivityOffline, s.Connectivity().Status)
		assert.False(t, s.Connectivity().IsOnline())
		assert.Empty(t, s.Fan().TimerMode)
		assert.Empty(t, s.Fan().TimerTimeout)
		assert.Nil(t, s.Humidity().AmbientHumidityPercent)
		assert.Equal(t, "Thermostat", s.Info().CustomName)
		assert.Equal(t, ScaleCelsius, s.Settings().TemperatureScale)
		assert.Nil(t, s.Temperature().AmbientTemperatureCelsius)
		assert.Equal(t, EcoOff, s.ThermostatEco().Mode)
		assert.Nil(t, s.ThermostatEco().HeatCelsius)
		assert.Nil(t, s.ThermostatEco().CoolCelsius)
		assert.Equal(t, HvacOff, s.ThermostatHvac().Status)
		assert.False(t, s.ThermostatHvac().IsActive())
		assert.Equal(t, ModeOff, s.ThermostatMode().Mode)
		assert.Nil(t, s.ThermostatTemperatureSetpoint().HeatCelsius)
		assert.Nil(t, s.ThermostatTemperatureSetpoint().CoolCelsius)
	}
}

func TestDecodeEmptyCustomName(t *testing.T) {
	info := Decode(KindInfo, "d", json.RawMessage(`{"customName": ""}`)).(*Info)
	assert.Equal(t, "Thermostat", info.CustomName)
}

func TestDecodeNumericFields(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want *float64
	}{
		{"number", `{"ambientTemperatureCelsius": 20.5}`, float(20.5)},
		{"numeric string", `{"ambientTemperatureCelsius": "19.25"}`, float(19.25)},
		{"integer", `{"ambientTemperatureCelsius": 21}`, float(21)},
		{"missing", `{}`, nil},
		{"null", `{"ambientTemperatureCelsius": null}`, nil},
		{"word", `{"ambientTemperatureCelsius": "warm"}`, nil},
		{"empty string", `{"ambientTemperatureCelsius": ""}`, nil},
		{"nan string", `{"ambientTemperatureCelsius": "NaN"}`, nil},
		{"object", `{"ambientTemperatureCelsius": {"v": 1}}`, nil},
		{"bool", `{"ambientTemperatureCelsius": true}`, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			temp := Decode(KindTemperature, "d", json.RawMessage(tc.raw)).(*Temperature)
			assert.Equal(t, tc.want, temp.AmbientTemperatureCelsius)

			// every numeric field shares the same rules
			humidity := Decode(KindHumidity, "d", json.RawMessage(
				replaceKey(tc.raw, "ambientTemperatureCelsius", "ambientHumidityPercent"))).(*Humidity)
			assert.Equal(t, tc.want, humidity.AmbientHumidityPercent)

			setpoint := Decode(KindThermostatTemperatureSetpoint, "d", json.RawMessage(
				replaceKey(tc.raw, "ambientTemperatureCelsius", "heatCelsius"))).(*ThermostatTemperatureSetpoint)
			assert.Equal(t, tc.want, setpoint.HeatCelsius)

			eco := Decode(KindThermostatEco, "d", json.RawMessage(
				replaceKey(tc.raw, "ambientTemperatureCelsius", "coolCelsius"))).(*ThermostatEco)
			assert.Equal(t, tc.want, eco.CoolCelsius)
		})
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	raw := map[string]json.RawMessage{
		"sdm.devices.traits.Connectivity": json.RawMessage(`{"status": "ONLINE"}`),
		"sdm.devices.traits.Fan":          json.RawMessage(`{"timerMode": "ON", "timerTimeout": "2019-05-10T03:22:54Z"}`),
		"sdm.devices.traits.Humidity":     json.RawMessage(`{"ambientHumidityPercent": 35.0}`),
		"sdm.devices.traits.Info":         json.RawMessage(`{"customName": "Hallway"}`),
		"sdm.devices.traits.Settings":     json.RawMessage(`{"temperatureScale": "FAHRENHEIT"}`),
		"sdm.devices.traits.Temperature":  json.RawMessage(`{"ambientTemperatureCelsius": 23.0}`),
		"sdm.devices.traits.ThermostatEco": json.RawMessage(`{
			"availableModes": ["MANUAL_ECO", "OFF"], "mode": "MANUAL_ECO", "heatCelsius": 4.4, "coolCelsius": 24.4}`),
		"sdm.devices.traits.ThermostatHvac": json.RawMessage(`{"status": "HEATING"}`),
		"sdm.devices.traits.ThermostatMode": json.RawMessage(`{
			"mode": "HEATCOOL", "availableModes": ["HEAT", "COOL", "HEATCOOL", "OFF"]}`),
		"sdm.devices.traits.ThermostatTemperatureSetpoint": json.RawMessage(`{"heatCelsius": 20.0, "coolCelsius": 22.0}`),
		"sdm.devices.traits.CameraImage":                   json.RawMessage(`{"maxImageResolution": {}}`),
	}

	s := DecodeSet("dev-1", raw)

	assert.Equal(t, "dev-1", s.DeviceID())
	assert.Equal(t, "ONLINE", s.Connectivity().Status)
	assert.True(t, s.Connectivity().IsOnline())
	assert.Equal(t, "ON", s.Fan().TimerMode)
	assert.Equal(t, "2019-05-10T03:22:54Z", s.Fan().TimerTimeout)
	assert.Equal(t, float(35), s.Humidity().AmbientHumidityPercent)
	assert.Equal(t, "Hallway", s.Info().CustomName)
	assert.Equal(t, ScaleFahrenheit, s.Settings().TemperatureScale)
	assert.Equal(t, float(23), s.Temperature().AmbientTemperatureCelsius)
	assert.Equal(t, []string{"MANUAL_ECO", "OFF"}, s.ThermostatEco().AvailableModes)
	assert.Equal(t, EcoManualEco, s.ThermostatEco().Mode)
	assert.Equal(t, float(4.4), s.ThermostatEco().HeatCelsius)
	assert.Equal(t, float(24.4), s.ThermostatEco().CoolCelsius)
	assert.Equal(t, HvacHeating, s.ThermostatHvac().Status)
	assert.True(t, s.ThermostatHvac().IsActive())
	assert.Equal(t, ModeHeatCool, s.ThermostatMode().Mode)
	assert.Equal(t, []string{"HEAT", "COOL", "HEATCOOL", "OFF"}, s.ThermostatMode().AvailableModes)
	assert.Equal(t, float(20), s.ThermostatTemperatureSetpoint().HeatCelsius)
	assert.Equal(t, float(22), s.ThermostatTemperatureSetpoint().CoolCelsius)
}

func TestDecodeForwardCompatibleModes(t *testing.T) {
	mode := Decode(KindThermostatMode, "d", json.RawMessage(`{"mode": "DEHUMIDIFY"}`)).(*ThermostatMode)
	assert.Equal(t, "DEHUMIDIFY", mode.Mode)

	hvac := Decode(KindThermostatHvac, "d", json.RawMessage(`{"status": "FAN_ONLY"}`)).(*ThermostatHvac)
	assert.True(t, hvac.IsActive())
}

func TestFanTimerTimeoutTime(t *testing.T) {
	fan := Decode(KindFan, "d", json.RawMessage(`{"timerMode": "ON", "timerTimeout": "2019-05-10T03:22:54Z"}`)).(*Fan)

	ts, ok := fan.TimerTimeoutTime()
	require.True(t, ok)
	assert.True(t, ts.Equal(time.Date(2019, 5, 10, 3, 22, 54, 0, time.UTC)))

	fan.TimerTimeout = "soon"
	_, ok = fan.TimerTimeoutTime()
	assert.False(t, ok)

	fan.TimerTimeout = ""
	_, ok = fan.TimerTimeoutTime()
	assert.False(t, ok)
}

func TestModeValidationMakesNoCalls(t *testing.T) {
	d := okDispatcher()
	mode := Decode(KindThermostatMode, "d", json.RawMessage(`{"mode": "HEAT", "availableModes": ["HEAT", "COOL"]}`)).(*ThermostatMode)

	_, err := mode.SetMode(context.Background(), d, "ECO")
	require.Error(t, err)

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, KindThermostatMode, validationErr.Trait)
	assert.Equal(t, "mode", validationErr.Field)
	assert.Contains(t, err.Error(), "ThermostatMode.mode")

	assert.Equal(t, 0, d.calls)
	assert.Equal(t, "HEAT", mode.Mode)
}

func TestOtherValidationFailures(t *testing.T) {
	d := okDispatcher()
	s := DecodeSet("d", map[string]json.RawMessage{
		KindThermostatEco.Key(): json.RawMessage(`{"availableModes": ["MANUAL_ECO", "OFF"], "mode": "OFF"}`),
	})

	var validationErr *ValidationError

	_, err := s.Fan().SetTimer(context.Background(), d, "ON", -time.Second)
	assert.True(t, errors.As(err, &validationErr))

	_, err = s.Fan().SetTimer(context.Background(), d, "AUTO", time.Minute)
	assert.True(t, errors.As(err, &validationErr))

	_, err = s.ThermostatEco().SetMode(context.Background(), d, "AUTO_ECO")
	assert.True(t, errors.As(err, &validationErr))

	// no availableModes reported means nothing can be chosen
	_, err = s.ThermostatMode().SetMode(context.Background(), d, "HEAT")
	assert.True(t, errors.As(err, &validationErr))

	sp := s.ThermostatTemperatureSetpoint()
	_, err = sp.SetHeat(context.Background(), d, math.NaN())
	assert.True(t, errors.As(err, &validationErr))
	_, err = sp.SetCool(context.Background(), d, math.Inf(1))
	assert.True(t, errors.As(err, &validationErr))
	_, err = sp.SetRange(context.Background(), d, 20, math.NaN())
	assert.True(t, errors.As(err, &validationErr))

	assert.Equal(t, 0, d.calls)
}

func TestSetHeatOptimisticUpdate(t *testing.T) {
	d := okDispatcher()
	sp := Decode(KindThermostatTemperatureSetpoint, "dev-9", json.RawMessage(`{"heatCelsius": 18}`)).(*ThermostatTemperatureSetpoint)

	res, err := sp.SetHeat(context.Background(), d, 21.5)
	require.NoError(t, err)
	assert.True(t, res.OK)

	assert.Equal(t, float(21.5), sp.HeatCelsius)
	assert.Nil(t, sp.CoolCelsius)
	assert.Equal(t, 1, d.calls)
	assert.Equal(t, "dev-9", d.deviceID)
	assert.Equal(t, sdmapi.CommandSetpointSetHeat, d.last.Name())
}

func TestRejectedCommandLeavesState(t *testing.T) {
	d := &stubDispatcher{result: sdmapi.Result{OK: false, Message: "quota exceeded"}}
	sp := Decode(KindThermostatTemperatureSetpoint, "d", json.RawMessage(`{"heatCelsius": 18, "coolCelsius": 25}`)).(*ThermostatTemperatureSetpoint)

	res, err := sp.SetRange(context.Background(), d, 19, 23)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "quota exceeded", res.Message)

	assert.Equal(t, float(18), sp.HeatCelsius)
	assert.Equal(t, float(25), sp.CoolCelsius)
}

func TestDispatchErrorLeavesState(t *testing.T) {
	d := &stubDispatcher{err: errors.New("connection reset")}
	mode := Decode(KindThermostatMode, "d", json.RawMessage(`{"mode": "HEAT", "availableModes": ["HEAT", "COOL"]}`)).(*ThermostatMode)

	_, err := mode.SetMode(context.Background(), d, "COOL")
	require.Error(t, err)
	assert.Equal(t, "HEAT", mode.Mode)
}

func TestMutatorsUpdateOnSuccess(t *testing.T) {
	d := okDispatcher()
	s := DecodeSet("d", map[string]json.RawMessage{
		KindThermostatEco.Key():  json.RawMessage(`{"availableModes": ["MANUAL_ECO", "OFF"], "mode": "OFF"}`),
		KindThermostatMode.Key(): json.RawMessage(`{"mode": "HEAT", "availableModes": ["HEAT", "COOL", "HEATCOOL", "OFF"]}`),
	})

	_, err := s.ThermostatEco().SetMode(context.Background(), d, "MANUAL_ECO")
	require.NoError(t, err)
	assert.Equal(t, EcoManualEco, s.ThermostatEco().Mode)

	_, err = s.ThermostatMode().SetMode(context.Background(), d, "COOL")
	require.NoError(t, err)
	assert.Equal(t, ModeCool, s.ThermostatMode().Mode)

	sp := s.ThermostatTemperatureSetpoint()
	_, err = sp.SetCool(context.Background(), d, 24)
	require.NoError(t, err)
	assert.Equal(t, float(24), sp.CoolCelsius)

	_, err = sp.SetRange(context.Background(), d, 19, 23)
	require.NoError(t, err)
	assert.Equal(t, float(19), sp.HeatCelsius)
	assert.Equal(t, float(23), sp.CoolCelsius)
	assert.Equal(t, 4, d.calls)
}

func TestFanSetTimer(t *testing.T) {
	d := okDispatcher()
	fan := Decode(KindFan, "d", nil).(*Fan)

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	fan.now = func() time.Time { return now }

	assert.Equal(t, []string{"ON", "OFF"}, fan.AllowedModes())

	_, err := fan.SetTimer(context.Background(), d, FanTimerOn, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, FanTimerOn, fan.TimerMode)

	ts, ok := fan.TimerTimeoutTime()
	require.True(t, ok)
	assert.True(t, ts.Equal(now.Add(15*time.Minute)))

	_, err = fan.SetTimer(context.Background(), d, FanTimerOff, 0)
	require.NoError(t, err)
	assert.Equal(t, FanTimerOff, fan.TimerMode)
	assert.Empty(t, fan.TimerTimeout)
	assert.Equal(t, 2, d.calls)
}

func float(v float64) *float64 {
	return &v
}

func replaceKey(raw, from, to string) string {
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return raw
	}
	if v, ok := m[from]; ok {
		delete(m, from)
		m[to] = v
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func TestChangeAppliesOnlyWhenAsked(t *testing.T) {
	mode := Decode(KindThermostatMode, "d", json.RawMessage(`{"mode": "HEAT", "availableModes": ["HEAT", "COOL"]}`)).(*ThermostatMode)

	c, err := mode.ModeChange("COOL")
	require.NoError(t, err)
	assert.Equal(t, sdmapi.CommandModeSetMode, c.Command.Name())
	assert.Equal(t, "HEAT", mode.Mode)

	c.Apply()
	assert.Equal(t, "COOL", mode.Mode)

	_, err = mode.ModeChange("ECO")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))

	// a zero Change is a no-op
	assert.NotPanics(t, Change{}.Apply)
}
