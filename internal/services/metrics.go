// Package services – engine metrics.
//
// Counters for the adherence engine itself, alongside the HTTP metrics the
// middleware layer exports. Label cardinality is bounded by the closed
// status/slot sets.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// dosesRecorded counts successful dose recordings by resulting status.
	dosesRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adherence_doses_recorded_total",
			Help: "Total successfully recorded doses by resulting cell status.",
		},
		[]string{"status"},
	)

	// recordContention counts guarded-update retries during dose recording.
	recordContention = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adherence_record_contention_retries_total",
			Help: "Total optimistic-concurrency retries while recording doses.",
		},
	)

	// sweepTransitions counts cells transitioned to missed by the sweeper.
	sweepTransitions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adherence_sweep_transitions_total",
			Help: "Total tracking cells marked missed by the sweeper.",
		},
	)

	// sweepPasses counts completed sweep passes.
	sweepPasses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adherence_sweep_passes_total",
			Help: "Total completed missed-dose sweep passes.",
		},
	)
)

func init() {
	prometheus.MustRegister(dosesRecorded, recordContention, sweepTransitions, sweepPasses)
}
