package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/sdm-thermostat/internal/pkg/handlers"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/logging"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/sdmapi"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/sdmauth"
	"github.com/jake-scott/sdm-thermostat/internal/pkg/thermostat"
	"github.com/jake-scott/sdm-thermostat/pkg/middlewares"
)

/*
 * The status server exposes the registry's thermostat views, a command
 * endpoint and prometheus metrics.  It runs alongside the event watcher.
 */

func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().String("listen", "", "address for the status server, eg. :8080 (default: no server)")
	cmd.Flags().Duration("graceful-timeout", time.Second*15, "duration to wait for server to finish, eg. 1m or 10s")
	cmd.Flags().Duration("read-timeout", time.Second*15, "duration to wait for request read, eg. 1m or 10s")
	cmd.Flags().Duration("write-timeout", time.Second*60, "duration to wait for request write, eg. 1m or 10s")
	cmd.Flags().Bool("log-requests", false, "log requests and responses (only in debug mode)")
	cmd.Flags().StringSlice("cors-origin", nil, "origins allowed to call the status server")

	errPanic(viper.GetViper().BindPFlag("server.listen", cmd.Flags().Lookup("listen")))
	errPanic(viper.GetViper().BindPFlag("server.graceful-timeout", cmd.Flags().Lookup("graceful-timeout")))
	errPanic(viper.GetViper().BindPFlag("server.read-timeout", cmd.Flags().Lookup("read-timeout")))
	errPanic(viper.GetViper().BindPFlag("server.write-timeout", cmd.Flags().Lookup("write-timeout")))
	errPanic(viper.GetViper().BindPFlag("server.cors-origins", cmd.Flags().Lookup("cors-origin")))
	errPanic(viper.GetViper().BindPFlag("logging.log-requests", cmd.Flags().Lookup("log-requests")))
}

func metricsRegistry(registry *thermostat.Registry) *prometheus.Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	groups := [][]prometheus.Collector{
		sdmauth.MetricsCollectors(),
		sdmapi.MetricsCollectors(),
		middlewares.MetricsCollectors(),
	}
	for _, group := range groups {
		for _, c := range group {
			reg.MustRegister(c)
		}
	}

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "sdm_thermostats",
		Help: "Number of thermostat views held by the watcher",
	}, func() float64 { return float64(len(registry.List())) }))

	return reg
}

func newStatusServer(registry *thermostat.Registry, client *sdmapi.Live) *http.Server {
	var logRequests bool
	if viper.GetBool("logging.log-requests") {
		if logrus.IsLevelEnabled(logrus.DebugLevel) {
			logRequests = true
		} else {
			logging.Logger(nil).Warn("log-requests ignored when not in debug mode")
		}
	}

	th := handlers.NewThermostatHandler(registry, sdmapi.NewDispatcher(client)).
		WithTimeout(viper.GetDuration("google.device-access.api-timeout"))

	r := mux.NewRouter()
	if origins := viper.GetStringSlice("server.cors-origins"); len(origins) > 0 {
		r.Use(middlewares.NewCorsMw(origins))
	}
	r.Use(middlewares.NewLoggingMw(logRequests))
	r.Use(middlewares.NewRecoveryMw())
	r.Use(middlewares.NewCorrelationMw(middlewares.CorrelationIDHeader))

	th.Register(r)
	r.Handle("/metrics", promhttp.HandlerFor(metricsRegistry(registry), promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return &http.Server{
		Addr:         viper.GetString("server.listen"),
		ReadTimeout:  viper.GetDuration("server.read-timeout"),
		WriteTimeout: viper.GetDuration("server.write-timeout"),
		IdleTimeout:  time.Second * 60,
		Handler:      r,
	}
}

// runStatusServer serves until ctx is cancelled, then shuts down gracefully
func runStatusServer(ctx context.Context, s *http.Server) {
	logging.Logger(nil).Infof("Status server listening on %s", s.Addr)

	go func() {
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Logger(nil).WithError(err).Error("running server")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("server.graceful-timeout"))
	defer cancel()

	logging.Logger(nil).Info("status server: shutting down")
	if err := s.Shutdown(shutdownCtx); err != nil {
		logging.Logger(nil).WithError(err).Errorf("shutting down")
	}
}
