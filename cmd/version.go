package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/logging"
	"github.com/jake-scott/sdm-thermostat/version"
)

var (
	_versionAsJSON bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display the version number of the tool",

	RunE: func(cmd *cobra.Command, args []string) error {
		return doVersion(_versionAsJSON)
	},
}

func init() {
	versionCmd.Flags().BoolVar(&_versionAsJSON, "json", false, "Return version as JSON")

	rootCmd.AddCommand(versionCmd)
}

type versionResult struct {
	Version   string `json:"version"`
	UserAgent string `json:"userAgent"`
	Instance  string `json:"instance"`
}

func doVersion(asJSON bool) error {
	if asJSON {
		return printJSON(versionResult{
			Version:   version.Version,
			UserAgent: version.UserAgent(),
			Instance:  logging.InstanceID(),
		})
	}

	fmt.Printf("sdm-thermostat version %s\n", version.Version)
	return nil
}

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}

	fmt.Println(string(b))
	return nil
}
