package traits

import (
	"context"
	"time"

	"github.com/go-openapi/strfmt"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/sdmapi"
)

const (
	FanTimerOn  = "ON"
	FanTimerOff = "OFF"
)

var fanTimerModes = []string{FanTimerOn, FanTimerOff}

// Fan controls the fan timer.  TimerMode and TimerTimeout are empty when the
// device does not report them.
type Fan struct {
	device
	TimerMode    string
	TimerTimeout string

	now func() time.Time
}

func decodeFan(deviceID string, fields object) Trait {
	return &Fan{
		device:       device{deviceID},
		TimerMode:    fields.stringField("timerMode"),
		TimerTimeout: fields.stringField("timerTimeout"),
		now:          time.Now,
	}
}

func (*Fan) Kind() Kind { return KindFan }

// AllowedModes returns the timer modes SetTimer accepts
func (t *Fan) AllowedModes() []string {
	return copyStrings(fanTimerModes)
}

// TimerTimeoutTime parses the timer timeout, if there is one
func (t *Fan) TimerTimeoutTime() (time.Time, bool) {
	if t.TimerTimeout == "" {
		return time.Time{}, false
	}

	dt, err := strfmt.ParseDateTime(t.TimerTimeout)
	if err != nil {
		return time.Time{}, false
	}

	return time.Time(dt), true
}

// TimerChange validates a fan timer change: ON for duration, or OFF.  A zero
// duration leaves the choice to the device.
func (t *Fan) TimerChange(mode string, duration time.Duration) (Change, error) {
	if err := validateMode(KindFan, "timerMode", mode, fanTimerModes); err != nil {
		return Change{}, err
	}
	if duration < 0 {
		return Change{}, &ValidationError{
			Trait:  KindFan,
			Field:  "duration",
			Value:  duration,
			Reason: "must not be negative",
		}
	}

	return Change{
		Command: sdmapi.NewFanTimerCommand(mode, duration),
		apply: func() {
			t.TimerMode = mode
			switch {
			case mode == FanTimerOn && duration > 0:
				t.TimerTimeout = strfmt.DateTime(t.now().Add(duration).UTC()).String()
			default:
				t.TimerTimeout = ""
			}
		},
	}, nil
}

// SetTimer turns the fan timer on for duration, or off
func (t *Fan) SetTimer(ctx context.Context, d Dispatcher, mode string, duration time.Duration) (sdmapi.Result, error) {
	c, err := t.TimerChange(mode, duration)
	return run(ctx, d, t.id, c, err)
}
