package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/go-openapi/swag"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/logging"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/sdmapi"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/thermostat"
)

/*
 * set <setting> DEVICE ARGS...
 *
 * Each subcommand fetches the thermostat, runs the matching mutator through
 * the command dispatcher and prints the outcome.  Temperatures are Celsius.
 */

// mutation applies one change to a freshly loaded thermostat
type mutation func(ctx context.Context, t *thermostat.Thermostat, d *sdmapi.Dispatcher) (sdmapi.Result, error)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Change a thermostat setting",
}

func newSetCommand(use string, short string, args cobra.PositionalArgs, build func(args []string) (mutation, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,

		PreRunE: func(cmd *cobra.Command, args []string) error {
			return checkAPIFlags()
		},

		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := build(args[1:])
			if err != nil {
				return err
			}

			return doSet(args[0], m)
		},
	}
}

func parseCelsius(name string, s string) (float64, error) {
	v, err := swag.ConvertFloat64(s)
	if err != nil {
		return 0, errors.Errorf("bad %s temperature: %s", name, s)
	}

	return v, nil
}

func init() {
	setCmd.AddCommand(newSetCommand("mode DEVICE MODE", "Set the thermostat mode (eg. HEAT, COOL, HEATCOOL, OFF)", cobra.ExactArgs(2),
		func(args []string) (mutation, error) {
			mode := args[0]
			return func(ctx context.Context, t *thermostat.Thermostat, d *sdmapi.Dispatcher) (sdmapi.Result, error) {
				return t.SetMode(ctx, d, mode)
			}, nil
		}))

	setCmd.AddCommand(newSetCommand("eco DEVICE MODE", "Set the eco mode (MANUAL_ECO or OFF)", cobra.ExactArgs(2),
		func(args []string) (mutation, error) {
			mode := args[0]
			return func(ctx context.Context, t *thermostat.Thermostat, d *sdmapi.Dispatcher) (sdmapi.Result, error) {
				return t.SetEcoMode(ctx, d, mode)
			}, nil
		}))

	setCmd.AddCommand(newSetCommand("fan DEVICE MODE [DURATION]", "Start (ON) or stop (OFF) the fan timer, eg. fan abc ON 15m", cobra.RangeArgs(2, 3),
		func(args []string) (mutation, error) {
			mode := args[0]

			var duration time.Duration
			if len(args) > 1 {
				var err error
				if duration, err = time.ParseDuration(args[1]); err != nil {
					return nil, errors.Wrap(err, "bad fan duration")
				}
			}

			return func(ctx context.Context, t *thermostat.Thermostat, d *sdmapi.Dispatcher) (sdmapi.Result, error) {
				return t.SetFanTimer(ctx, d, mode, duration)
			}, nil
		}))

	setCmd.AddCommand(newSetCommand("heat DEVICE CELSIUS", "Set the heating target", cobra.ExactArgs(2),
		func(args []string) (mutation, error) {
			heat, err := parseCelsius("heat", args[0])
			if err != nil {
				return nil, err
			}

			return func(ctx context.Context, t *thermostat.Thermostat, d *sdmapi.Dispatcher) (sdmapi.Result, error) {
				return t.SetHeat(ctx, d, heat)
			}, nil
		}))

	setCmd.AddCommand(newSetCommand("cool DEVICE CELSIUS", "Set the cooling target", cobra.ExactArgs(2),
		func(args []string) (mutation, error) {
			cool, err := parseCelsius("cool", args[0])
			if err != nil {
				return nil, err
			}

			return func(ctx context.Context, t *thermostat.Thermostat, d *sdmapi.Dispatcher) (sdmapi.Result, error) {
				return t.SetCool(ctx, d, cool)
			}, nil
		}))

	setCmd.AddCommand(newSetCommand("range DEVICE HEAT_CELSIUS COOL_CELSIUS", "Set the heating and cooling targets", cobra.ExactArgs(3),
		func(args []string) (mutation, error) {
			heat, err := parseCelsius("heat", args[0])
			if err != nil {
				return nil, err
			}
			cool, err := parseCelsius("cool", args[1])
			if err != nil {
				return nil, err
			}

			return func(ctx context.Context, t *thermostat.Thermostat, d *sdmapi.Dispatcher) (sdmapi.Result, error) {
				return t.SetRange(ctx, d, heat, cool)
			}, nil
		}))

	rootCmd.AddCommand(setCmd)
}

func doSet(deviceID string, m mutation) error {
	_, client, err := newAPIClient()
	if err != nil {
		return err
	}

	ctx := commandContext()

	t, err := loadThermostat(ctx, client, deviceID)
	if err != nil {
		return err
	}

	res, err := m(ctx, t, sdmapi.NewDispatcher(client))
	if err != nil {
		return err
	}

	if !res.OK {
		logging.Logger(ctx).Debugf("Command rejected for %s", deviceID)
		return errors.Errorf("command rejected: %s", res.Message)
	}

	fmt.Println(res.Message)
	return nil
}
