package cmd

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/logging"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/sdmapi"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/sdmauth"
)

/*
 * Flags shared by every command that talks to the SDM API
 */

func init() {
	flags := rootCmd.PersistentFlags()

	flags.String("client-id", "", "OAuth client ID from the Google Cloud console")
	flags.String("client-secret", "", "OAuth client secret from the Google Cloud console")
	flags.String("refresh-token", "", "OAuth refresh token, see the authorize command")
	flags.String("token-url", sdmauth.DefaultTokenURL, "OAuth token endpoint")
	flags.String("state-file", "", "file to cache the access token between runs")
	flags.String("sdm-project", "", "Device Access project ID from the Device Access console")
	flags.String("api-url", sdmapi.DefaultBaseURL, "SDM API base URL")
	flags.Duration("api-timeout", time.Second*15, "maximum duration of an SDM API call, eg. 1m or 10s")
	flags.Float64("rate-limit", 0, "maximum SDM API requests per second, 0 for no limit")
	flags.Int("rate-burst", 1, "SDM API request burst size")

	errPanic(viper.GetViper().BindPFlag("google.oauth.client-id", flags.Lookup("client-id")))
	errPanic(viper.GetViper().BindPFlag("google.oauth.client-secret", flags.Lookup("client-secret")))
	errPanic(viper.GetViper().BindPFlag("google.oauth.refresh-token", flags.Lookup("refresh-token")))
	errPanic(viper.GetViper().BindPFlag("google.oauth.token-url", flags.Lookup("token-url")))
	errPanic(viper.GetViper().BindPFlag("google.oauth.state-file", flags.Lookup("state-file")))
	errPanic(viper.GetViper().BindPFlag("google.device-access.project", flags.Lookup("sdm-project")))
	errPanic(viper.GetViper().BindPFlag("google.device-access.api-url", flags.Lookup("api-url")))
	errPanic(viper.GetViper().BindPFlag("google.device-access.api-timeout", flags.Lookup("api-timeout")))
	errPanic(viper.GetViper().BindPFlag("google.device-access.rate-limit", flags.Lookup("rate-limit")))
	errPanic(viper.GetViper().BindPFlag("google.device-access.rate-burst", flags.Lookup("rate-burst")))
}

func checkAPIFlags() error {
	return checkRequiredFlags("google.oauth.client-id", "google.oauth.client-secret",
		"google.oauth.refresh-token", "google.device-access.project")
}

func credentialsFromConfig() sdmauth.Credentials {
	return sdmauth.Credentials{
		ClientID:     viper.GetString("google.oauth.client-id"),
		ClientSecret: viper.GetString("google.oauth.client-secret"),
		RefreshToken: viper.GetString("google.oauth.refresh-token"),
		ProjectID:    viper.GetString("google.device-access.project"),
	}
}

// newTokenManager builds the token manager, restoring any access token cached
// in the state file by an earlier run
func newTokenManager(creds sdmauth.Credentials) (*sdmauth.Manager, error) {
	m := sdmauth.NewManager(creds)
	m.TokenURL = viper.GetString("google.oauth.token-url")

	stateFile := viper.GetString("google.oauth.state-file")
	if stateFile == "" {
		return m, nil
	}

	err := m.Load(stateFile)
	switch {
	case err == nil:
		logging.Logger(nil).Debugf("Loaded token state: %s", m)
	case errors.Is(err, os.ErrNotExist):
		// start a new state file
		if err := m.Save(stateFile); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	return m, nil
}

// newAPIClient returns a token manager and an SDM client using it
func newAPIClient() (*sdmauth.Manager, *sdmapi.Live, error) {
	creds := credentialsFromConfig()
	if err := creds.Validate(); err != nil {
		return nil, nil, err
	}

	m, err := newTokenManager(creds)
	if err != nil {
		return nil, nil, err
	}

	client := sdmapi.NewLiveClient(creds.ProjectID, m).
		WithBaseURL(viper.GetString("google.device-access.api-url")).
		WithTimeout(viper.GetDuration("google.device-access.api-timeout")).
		WithRateLimit(viper.GetFloat64("google.device-access.rate-limit"), viper.GetInt("google.device-access.rate-burst"))

	return m, client, nil
}
