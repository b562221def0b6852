package token

import "github.com/prometheus/client_golang/prometheus"

var (
	refreshSuccess = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homeconnect_token_refresh_success_total",
			Help: "Successful token refreshes",
		},
		[]string{"provider"},
	)
	refreshFailure = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homeconnect_token_refresh_failure_total",
			Help: "Failed token refreshes",
		},
		[]string{"provider"},
	)
	tokenValid = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "homeconnect_token_valid",
			Help: "Access token validity (1=valid, 0=invalid)",
		},
		[]string{"provider"},
	)
)

// MetricsCollectors returns collectors for the token manager
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		refreshSuccess,
		refreshFailure,
		tokenValid,
	}
}
