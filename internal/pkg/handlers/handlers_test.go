package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/sdmapi"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/thermostat"
)

type fakeDispatcher struct {
	result sdmapi.Result
	err    error
	calls  []sdmapi.Command
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, deviceID string, cmd sdmapi.Command) (sdmapi.Result, error) {
	f.calls = append(f.calls, cmd)
	return f.result, f.err
}

type fakeLister []sdmapi.RawDevice

func (l fakeLister) Devices(ctx context.Context) ([]sdmapi.RawDevice, error) {
	return l, nil
}

func newRouter(t *testing.T, d *fakeDispatcher) *mux.Router {
	var raw sdmapi.RawDevice
	require.NoError(t, json.Unmarshal([]byte(`{
		"name": "enterprises/p/devices/t1",
		"type": "sdm.devices.types.THERMOSTAT",
		"traits": {
			"sdm.devices.traits.Info": {"customName": "Hall"},
			"sdm.devices.traits.ThermostatMode": {"mode": "HEAT", "availableModes": ["HEAT", "COOL", "OFF"]},
			"sdm.devices.traits.ThermostatTemperatureSetpoint": {"heatCelsius": 19}
		}
	}`), &raw))

	registry := thermostat.NewRegistry()
	_, err := registry.Load(context.Background(), fakeLister{raw})
	require.NoError(t, err)

	r := mux.NewRouter()
	NewThermostatHandler(registry, d).WithTimeout(time.Second).Register(r)
	return r
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestListAndGet(t *testing.T) {
	r := newRouter(t, &fakeDispatcher{})

	rec := do(r, http.MethodGet, "/thermostats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var list []thermostat.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "t1", list[0].DeviceID)
	assert.Equal(t, "Hall", list[0].DisplayName)

	rec = do(r, http.MethodGet, "/thermostats/t1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var one thermostat.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, "HEAT", one.Mode)

	rec = do(r, http.MethodGet, "/thermostats/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing")
}

func TestCommand(t *testing.T) {
	d := &fakeDispatcher{result: sdmapi.Result{OK: true, Message: "success"}}
	r := newRouter(t, d)

	rec := do(r, http.MethodPost, "/thermostats/t1/commands", `{"command": "heat", "heatCelsius": 21.5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		OK         bool              `json:"ok"`
		Message    string            `json:"message"`
		Thermostat thermostat.Status `json:"thermostat"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, "success", resp.Message)
	require.NotNil(t, resp.Thermostat.HeatCelsius)
	assert.Equal(t, 21.5, *resp.Thermostat.HeatCelsius)

	require.Len(t, d.calls, 1)
	assert.Equal(t, sdmapi.CommandSetpointSetHeat, d.calls[0].Name())
}

func TestCommandRejected(t *testing.T) {
	d := &fakeDispatcher{result: sdmapi.Result{OK: false, Message: "quota exceeded"}}
	r := newRouter(t, d)

	rec := do(r, http.MethodPost, "/thermostats/t1/commands", `{"command": "mode", "mode": "COOL"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok":false`)
	assert.Contains(t, rec.Body.String(), "quota exceeded")
	assert.Contains(t, rec.Body.String(), `"mode":"HEAT"`)
}

func TestCommandValidation(t *testing.T) {
	cases := map[string]string{
		"no command":       `{}`,
		"unknown command":  `{"command": "defrost"}`,
		"missing mode":     `{"command": "mode"}`,
		"missing setpoint": `{"command": "range", "heatCelsius": 18}`,
		"negative fan":     `{"command": "fan", "mode": "ON", "durationSeconds": -5}`,
		"mode not allowed": `{"command": "mode", "mode": "HEATCOOL"}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			d := &fakeDispatcher{result: sdmapi.Result{OK: true}}
			r := newRouter(t, d)

			rec := do(r, http.MethodPost, "/thermostats/t1/commands", body)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
			assert.Empty(t, d.calls)
		})
	}
}

func TestCommandBadRequests(t *testing.T) {
	r := newRouter(t, &fakeDispatcher{})

	rec := do(r, http.MethodPost, "/thermostats/t1/commands", `{"command": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(r, http.MethodPost, "/thermostats/t1/commands", `{"command": "heat"} {}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/thermostats/t1/commands", strings.NewReader(`command=heat`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = do(r, http.MethodPost, "/thermostats/nope/commands", `{"command": "heat", "heatCelsius": 20}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCommandUpstreamErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{&sdmapi.TimeoutError{Op: "POST", Timeout: time.Second}, http.StatusGatewayTimeout},
		{&sdmapi.HTTPError{StatusCode: 500, Message: "backend"}, http.StatusBadGateway},
		{context.Canceled, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		d := &fakeDispatcher{err: tc.err}
		r := newRouter(t, d)

		rec := do(r, http.MethodPost, "/thermostats/t1/commands", `{"command": "cool", "coolCelsius": 24}`)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
	}
}

type fakeAuth struct{}

func (fakeAuth) AuthCodeURL(redirectURL, state string) string {
	return "https://consent.example/auth?redirect_uri=" + url.QueryEscape(redirectURL) + "&state=" + state
}

func TestOauthHandler(t *testing.T) {
	codes := make(chan string, 1)
	h := NewOauthHandler(fakeAuth{}, "http://localhost:8080/", "st-1", codes)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "https://consent.example/auth")
	assert.Contains(t, rec.Header().Get("Location"), "state=st-1")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?code=abc&state=wrong", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?error=access_denied", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?code=abc&state=st-1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", <-codes)

	// a full channel drops later codes
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?code=again&state=st-1", nil))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?code=third&state=st-1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "again", <-codes)
}
