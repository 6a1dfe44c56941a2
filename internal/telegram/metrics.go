package telegram

import "github.com/prometheus/client_golang/prometheus"

var (
	// requestsTotal counts attempts by method and HTTP status ("error" for
	// transport failures).
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_requests_total",
			Help: "Total number of Bot API call attempts.",
		},
		[]string{"method", "status"},
	)

	retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_retries_total",
			Help: "Total number of Bot API retries.",
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal, retriesTotal)
}
