package handlers

import (
	"context"
	"net/http"
	"time"

	oaerrors "github.com/go-openapi/errors"
	"github.com/go-openapi/validate"
	"github.com/gorilla/mux"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/logging"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/sdmapi"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/thermostat"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/traits"
)

/*
 * ThermostatHandler serves the current thermostat views as JSON and accepts
 * commands for them:
 *
 *   GET  /thermostats
 *   GET  /thermostats/{id}
 *   POST /thermostats/{id}/commands
 */

// ThermostatStore looks up the views served by the handler
type ThermostatStore interface {
	List() []*thermostat.Thermostat
	Get(deviceID string) (*thermostat.Thermostat, bool)
}

type ThermostatHandler struct {
	store      ThermostatStore
	dispatcher traits.Dispatcher
	timeout    time.Duration
}

func NewThermostatHandler(store ThermostatStore, dispatcher traits.Dispatcher) *ThermostatHandler {
	return &ThermostatHandler{
		store:      store,
		dispatcher: dispatcher,
	}
}

// WithTimeout bounds each command request
func (h *ThermostatHandler) WithTimeout(d time.Duration) *ThermostatHandler {
	nh := *h
	nh.timeout = d
	return &nh
}

// Register adds the handler's routes to r
func (h *ThermostatHandler) Register(r *mux.Router) {
	r.HandleFunc("/thermostats", h.list).Methods(http.MethodGet)
	r.HandleFunc("/thermostats/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/thermostats/{id}/commands", h.command).Methods(http.MethodPost)
}

func (h *ThermostatHandler) list(w http.ResponseWriter, r *http.Request) {
	views := h.store.List()

	statuses := make([]thermostat.Status, len(views))
	for i, t := range views {
		statuses[i] = t.Snapshot()
	}

	sendJSONResponse(w, r, http.StatusOK, statuses)
}

func (h *ThermostatHandler) lookup(w http.ResponseWriter, r *http.Request) (*thermostat.Thermostat, bool) {
	id := mux.Vars(r)["id"]

	t, ok := h.store.Get(id)
	if !ok {
		sendError(w, r, oaerrors.NotFound("thermostat %s not found", id))
		return nil, false
	}

	return t, true
}

func (h *ThermostatHandler) get(w http.ResponseWriter, r *http.Request) {
	t, ok := h.lookup(w, r)
	if !ok {
		return
	}

	sendJSONResponse(w, r, http.StatusOK, t.Snapshot())
}

// Command names accepted by the commands endpoint
const (
	CommandMode  = "mode"
	CommandEco   = "eco"
	CommandFan   = "fan"
	CommandHeat  = "heat"
	CommandCool  = "cool"
	CommandRange = "range"
)

var commandNames = []interface{}{CommandMode, CommandEco, CommandFan, CommandHeat, CommandCool, CommandRange}

type commandRequest struct {
	Command         string   `json:"command"`
	Mode            string   `json:"mode,omitempty"`
	HeatCelsius     *float64 `json:"heatCelsius,omitempty"`
	CoolCelsius     *float64 `json:"coolCelsius,omitempty"`
	DurationSeconds int64    `json:"durationSeconds,omitempty"`
}

// Validate checks the request has the fields its command needs
func (c *commandRequest) Validate() error {
	var res []error

	if err := validate.RequiredString("command", "body", c.Command); err != nil {
		return oaerrors.CompositeValidationError(err)
	}
	if err := validate.Enum("command", "body", c.Command, commandNames); err != nil {
		return oaerrors.CompositeValidationError(err)
	}

	switch c.Command {
	case CommandMode, CommandEco, CommandFan:
		if err := validate.RequiredString("mode", "body", c.Mode); err != nil {
			res = append(res, err)
		}
	}

	switch c.Command {
	case CommandHeat, CommandRange:
		if err := validate.Required("heatCelsius", "body", c.HeatCelsius); err != nil {
			res = append(res, err)
		}
	}

	switch c.Command {
	case CommandCool, CommandRange:
		if err := validate.Required("coolCelsius", "body", c.CoolCelsius); err != nil {
			res = append(res, err)
		}
	}

	if c.Command == CommandFan {
		if err := validate.MinimumInt("durationSeconds", "body", c.DurationSeconds, 0, false); err != nil {
			res = append(res, err)
		}
	}

	if len(res) > 0 {
		return oaerrors.CompositeValidationError(res...)
	}

	return nil
}

type commandResponse struct {
	sdmapi.Result
	Thermostat thermostat.Status `json:"thermostat"`
}

func (h *ThermostatHandler) apply(ctx context.Context, t *thermostat.Thermostat, req *commandRequest) (sdmapi.Result, error) {
	switch req.Command {
	case CommandMode:
		return t.SetMode(ctx, h.dispatcher, req.Mode)
	case CommandEco:
		return t.SetEcoMode(ctx, h.dispatcher, req.Mode)
	case CommandFan:
		return t.SetFanTimer(ctx, h.dispatcher, req.Mode, time.Duration(req.DurationSeconds)*time.Second)
	case CommandHeat:
		return t.SetHeat(ctx, h.dispatcher, *req.HeatCelsius)
	case CommandCool:
		return t.SetCool(ctx, h.dispatcher, *req.CoolCelsius)
	case CommandRange:
		return t.SetRange(ctx, h.dispatcher, *req.HeatCelsius, *req.CoolCelsius)
	}

	return sdmapi.Result{}, oaerrors.New(http.StatusUnprocessableEntity, "unsupported command %s", req.Command)
}

func (h *ThermostatHandler) command(w http.ResponseWriter, r *http.Request) {
	t, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req commandRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		sendError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		sendError(w, r, err)
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	res, err := h.apply(ctx, t, &req)
	if err != nil {
		sendError(w, r, err)
		return
	}

	logging.Logger(ctx).Infof("Command %s on %s: ok=%t %s", req.Command, t.DeviceID(), res.OK, res.Message)

	sendJSONResponse(w, r, http.StatusOK, commandResponse{
		Result:     res,
		Thermostat: t.Snapshot(),
	})
}
