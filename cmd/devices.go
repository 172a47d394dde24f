package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/go-openapi/swag"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/logging"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/sdmapi"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/thermostat"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/traits"
)

var (
	_devicesAsJSON bool
	_showAsJSON    bool
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the devices visible to the Device Access project",

	RunE: func(cmd *cobra.Command, args []string) error {
		return doDevices(_devicesAsJSON)
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkAPIFlags()
	},
}

var showCmd = &cobra.Command{
	Use:   "show DEVICE",
	Short: "Show the current state of a thermostat",
	Args:  cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		return doShow(args[0], _showAsJSON)
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkAPIFlags()
	},
}

func init() {
	devicesCmd.Flags().BoolVar(&_devicesAsJSON, "json", false, "Print devices as JSON")
	showCmd.Flags().BoolVar(&_showAsJSON, "json", false, "Print status as JSON")

	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(showCmd)
}

// commandContext tags a command run with its own request ID
func commandContext() context.Context {
	return logging.WithRequestID(context.Background(), uuid.New().String())
}

type deviceSummary struct {
	DeviceID    string `json:"deviceId"`
	Type        string `json:"type"`
	DisplayName string `json:"displayName"`
	Room        string `json:"room,omitempty"`
}

func doDevices(asJSON bool) error {
	_, client, err := newAPIClient()
	if err != nil {
		return err
	}

	devices, err := client.Devices(commandContext())
	if err != nil {
		return err
	}

	summaries := make([]deviceSummary, len(devices))
	for i, d := range devices {
		summaries[i] = deviceSummary{
			DeviceID:    d.ID(),
			Type:        strings.TrimPrefix(d.Type, "sdm.devices.types."),
			DisplayName: traits.DecodeSet(d.ID(), d.Traits).Info().CustomName,
		}
		if len(d.ParentRelations) > 0 {
			summaries[i].Room = d.ParentRelations[0].DisplayName
		}
	}

	if asJSON {
		return printJSON(summaries)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tNAME\tROOM")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.DeviceID, s.Type, s.DisplayName, s.Room)
	}

	return w.Flush()
}

// loadThermostat fetches a fresh view of one thermostat
func loadThermostat(ctx context.Context, getter sdmapi.DeviceGetter, deviceID string) (*thermostat.Thermostat, error) {
	raw, err := getter.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	return thermostat.New(raw)
}

func formatTemp(s thermostat.Status, celsius *float64) string {
	v := s.Display(celsius)
	if v == nil {
		return "-"
	}

	unit := "C"
	if s.TemperatureScale == traits.ScaleFahrenheit {
		unit = "F"
	}

	return fmt.Sprintf("%.1f°%s", swag.Float64Value(v), unit)
}

func printStatus(s thermostat.Status) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	connected := "offline"
	if s.Connected {
		connected = "online"
	}

	humidity := "-"
	if s.HumidityPercent != nil {
		humidity = fmt.Sprintf("%.0f%%", *s.HumidityPercent)
	}

	fmt.Fprintf(w, "Device:\t%s\n", s.DeviceID)
	fmt.Fprintf(w, "Name:\t%s\n", s.DisplayName)
	if s.Room != "" {
		fmt.Fprintf(w, "Room:\t%s\n", s.Room)
	}
	fmt.Fprintf(w, "Connectivity:\t%s\n", connected)
	fmt.Fprintf(w, "Temperature:\t%s\n", formatTemp(s, s.AmbientTemperatureCelsius))
	fmt.Fprintf(w, "Humidity:\t%s\n", humidity)
	fmt.Fprintf(w, "Mode:\t%s %v\n", s.Mode, s.AvailableModes)
	fmt.Fprintf(w, "HVAC:\t%s\n", s.HvacStatus)
	fmt.Fprintf(w, "Heat target:\t%s\n", formatTemp(s, s.HeatCelsius))
	fmt.Fprintf(w, "Cool target:\t%s\n", formatTemp(s, s.CoolCelsius))
	fmt.Fprintf(w, "Eco:\t%s %v\n", s.EcoMode, s.EcoAvailableModes)
	fmt.Fprintf(w, "Eco heat/cool:\t%s / %s\n", formatTemp(s, s.EcoHeatCelsius), formatTemp(s, s.EcoCoolCelsius))
	if s.FanTimerMode != "" {
		fmt.Fprintf(w, "Fan timer:\t%s %s\n", s.FanTimerMode, s.FanTimerTimeout)
	}

	return w.Flush()
}

func doShow(deviceID string, asJSON bool) error {
	_, client, err := newAPIClient()
	if err != nil {
		return err
	}

	t, err := loadThermostat(commandContext(), client, deviceID)
	if err != nil {
		return err
	}

	if asJSON {
		return printJSON(t.Snapshot())
	}

	return printStatus(t.Snapshot())
}
