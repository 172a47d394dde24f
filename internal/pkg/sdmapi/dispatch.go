package sdmapi

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/logging"
)

var commandTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sdm_command_total",
		Help: "Device commands dispatched, by command name and result (ok, rejected, error)",
	},
	[]string{"command", "result"},
)

// MetricsCollectors returns the dispatcher collectors for registration
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{commandTotal}
}

// Result is the outcome of a dispatched command.  A command the API rejected
// is a Result with OK unset, not an error.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Dispatcher sends every mutating command and shields callers from API
// rejections
type Dispatcher struct {
	exec CommandExecutor
}

func NewDispatcher(exec CommandExecutor) *Dispatcher {
	return &Dispatcher{exec: exec}
}

// Dispatch executes cmd on the device.  An *HTTPError becomes a failed Result
// carrying the upstream message; any other failure is returned as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, deviceID string, cmd Command) (Result, error) {
	ctxLogger := logging.Logger(ctx).WithField("device", deviceID).WithField("command", cmd.Name())

	err := d.exec.ExecuteCommand(ctx, deviceID, cmd)
	if err == nil {
		ctxLogger.Info("Command succeeded")
		commandTotal.WithLabelValues(cmd.Name(), "ok").Inc()
		return Result{OK: true, Message: "success"}, nil
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		ctxLogger.WithError(httpErr).Warn("Command rejected")
		commandTotal.WithLabelValues(cmd.Name(), "rejected").Inc()
		return Result{OK: false, Message: httpErr.Message}, nil
	}

	ctxLogger.WithError(err).Error("Command failed")
	commandTotal.WithLabelValues(cmd.Name(), "error").Inc()
	return Result{}, err
}
