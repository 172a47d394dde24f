package cmd

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/handlers"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/logging"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/sdmauth"
	"github.com/jake-scott/sdm-thermostat/pkg/middlewares"
)

var _authorizeCmdOpts struct {
	redirectURL string
	listen      string
}

var authorizeCmd = &cobra.Command{
	Use:   "authorize",
	Short: "Obtain a refresh token through the Nest consent page",

	RunE: func(cmd *cobra.Command, args []string) error {
		return doAuthorize()
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRequiredFlags("google.oauth.client-id", "google.oauth.client-secret",
			"google.device-access.project", "google.oauth.redirect-url")
	},
}

func init() {
	authorizeCmd.Flags().StringVar(&_authorizeCmdOpts.redirectURL, "redirect-url", "", "OAuth redirect URL registered for the client")
	authorizeCmd.Flags().StringVar(&_authorizeCmdOpts.listen, "listen", "", "address to receive the redirect on, eg. :8080 (default: read the code from stdin)")

	errPanic(viper.GetViper().BindPFlag("google.oauth.redirect-url", authorizeCmd.Flags().Lookup("redirect-url")))

	rootCmd.AddCommand(authorizeCmd)
}

func readCodeFromStdin(authURL string) (string, error) {
	fmt.Printf("Visit this URL to authorize access:\n\n  %s\n\n", authURL)
	fmt.Print("Paste the code parameter from the redirect: ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", errors.Wrap(err, "reading authorization code")
	}

	return strings.TrimSpace(line), nil
}

func receiveCode(listen string, m *sdmauth.Manager, redirectURL string, state string) (string, error) {
	codes := make(chan string, 1)

	r := mux.NewRouter()
	r.Use(middlewares.NewLoggingMw(false))
	r.Use(middlewares.NewRecoveryMw())
	r.Handle("/", handlers.NewOauthHandler(m, redirectURL, state, codes)).Methods(http.MethodGet)

	s := &http.Server{
		Addr:         listen,
		ReadTimeout:  time.Second * 15,
		WriteTimeout: time.Second * 15,
		Handler:      r,
	}

	errs := make(chan error, 1)
	go func() {
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- err
		}
	}()

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		if err := s.Shutdown(ctx); err != nil {
			logging.Logger(nil).WithError(err).Error("shutting down")
		}
	}()

	fmt.Printf("Visit this URL to authorize access:\n\n  %s\n\n", m.AuthCodeURL(redirectURL, state))

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	defer signal.Stop(c)

	select {
	case code := <-codes:
		return code, nil
	case err := <-errs:
		return "", errors.Wrapf(err, "listening on %s", listen)
	case <-c:
		return "", errors.New("interrupted")
	}
}

func doAuthorize() error {
	redirectURL := viper.GetString("google.oauth.redirect-url")

	creds := credentialsFromConfig()
	m, err := newTokenManager(creds)
	if err != nil {
		return err
	}

	state := uuid.New().String()

	var code string
	if _authorizeCmdOpts.listen != "" {
		code, err = receiveCode(_authorizeCmdOpts.listen, m, redirectURL, state)
	} else {
		code, err = readCodeFromStdin(m.AuthCodeURL(redirectURL, state))
	}
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("google.device-access.api-timeout"))
	defer cancel()

	refreshToken, err := m.ExchangeCode(logging.WithRequestID(ctx, state), redirectURL, code)
	if err != nil {
		return err
	}

	if stateFile := viper.GetString("google.oauth.state-file"); stateFile != "" {
		if err := m.Save(stateFile); err != nil {
			return err
		}
	}

	fmt.Printf("\nRefresh token:\n\n  %s\n\nAdd it to the configuration as google.oauth.refresh-token\n", refreshToken)
	return nil
}
