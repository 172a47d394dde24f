package cmd

import (
	"fmt"
	"os"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/logging"
)

var (
	_cfgFile string
	_debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "sdm-thermostat",
	Short: "Read and control Nest thermostats through the Smart Device Management API",

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Configure(viper.GetViper())
	},
}

// Execute runs the root command, exiting non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&_cfgFile, "config", "", "config file (default is $HOME/.sdm-thermostat.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&_debug, "debug", "d", false, "enable debug logging")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text or json)")
	rootCmd.PersistentFlags().String("log-location", "stderr", "stdout, stderr or a file name")

	errPanic(viper.GetViper().BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level")))
	errPanic(viper.GetViper().BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format")))
	errPanic(viper.GetViper().BindPFlag("logging.location", rootCmd.PersistentFlags().Lookup("log-location")))
}

func initConfig() {
	if _debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if _cfgFile != "" {
		viper.SetConfigFile(_cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			logging.Logger(nil).WithError(err).Fatal("finding home directory")
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".sdm-thermostat")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("SDM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logging.Logger(nil).Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _cfgFile != "" {
		logging.Logger(nil).WithError(err).Fatal("reading config file")
	}
}

func errPanic(err error) {
	if err != nil {
		panic(err)
	}
}

func checkRequiredFlags(needFlags ...string) error {
	missingFlags := []string{}

	for _, f := range needFlags {
		if !viper.IsSet(f) {
			missingFlags = append(missingFlags, f)
		}
	}

	if len(missingFlags) > 0 {
		itemPlural := "item"
		if len(missingFlags) > 1 {
			itemPlural = "items"
		}
		return fmt.Errorf("required config %s `%s` not set", itemPlural, strings.Join(missingFlags, "`, `"))
	}

	return nil
}
