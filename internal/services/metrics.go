package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// updatesTotal counts dispatched events by kind and outcome.
	updatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_updates_total",
			Help: "Inbound events handled, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	duplicatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_duplicates_total",
			Help: "Inbound events discarded as redeliveries.",
		},
		[]string{"kind"},
	)

	// challengesTotal counts challenges by result: issued, send_failed,
	// accepted, rejected, expired.
	challengesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_challenges_total",
			Help: "Verification challenges by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(updatesTotal, duplicatesTotal, challengesTotal)
}

// Event outcomes.
const (
	outcomeRelayed     = "relayed"
	outcomeReplied     = "replied"
	outcomeBlocked     = "blocked"
	outcomeChallenged  = "challenged"
	outcomeRateLimited = "rate_limited"
	outcomeStart       = "start"
	outcomeAdmin       = "admin"
	outcomeAnswered    = "answered"
	outcomeIgnored     = "ignored"
	outcomeFailed      = "failed"
)
