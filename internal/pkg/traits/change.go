package traits

import (
	"context"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/sdmapi"
)

// Change is a validated mutation of one trait: the command to send, and the
// cached update to make once the device has accepted it
type Change struct {
	Command sdmapi.Command
	apply   func()
}

// Apply makes the optimistic update to the trait's cached fields
func (c Change) Apply() {
	if c.apply != nil {
		c.apply()
	}
}

// run dispatches a prepared change and applies it if the device accepted it
func run(ctx context.Context, d Dispatcher, deviceID string, c Change, err error) (sdmapi.Result, error) {
	if err != nil {
		return sdmapi.Result{}, err
	}

	res, err := d.Dispatch(ctx, deviceID, c.Command)
	if err == nil && res.OK {
		c.Apply()
	}

	return res, err
}
