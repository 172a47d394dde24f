package sdmauth

import "github.com/prometheus/client_golang/prometheus"

var (
	refreshSuccess = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sdm_oauth_refresh_success_total",
			Help: "Successful access token refreshes",
		},
	)
	refreshFailure = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sdm_oauth_refresh_failure_total",
			Help: "Failed access token refreshes",
		},
	)
	tokenValid = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sdm_oauth_token_valid",
			Help: "Whether the last refresh produced a usable access token (1=valid, 0=invalid)",
		},
	)
)

// MetricsCollectors returns the token manager collectors for registration
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		refreshSuccess,
		refreshFailure,
		tokenValid,
	}
}
