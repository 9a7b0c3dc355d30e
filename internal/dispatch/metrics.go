package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"

	"dispatchd/internal/pool"
)

var (
	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatchd",
			Subsystem: "dispatch",
			Name:      "total",
			Help:      "Dispatch outcomes by mode and result kind",
		},
		[]string{"mode", "outcome"},
	)

	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dispatchd",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Dispatch wall time in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)

	strategyWins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatchd",
			Subsystem: "race",
			Name:      "wins_total",
			Help:      "Races won per strategy",
		},
		[]string{"strategy"},
	)

	strategyFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatchd",
			Subsystem: "race",
			Name:      "strategy_failures_total",
			Help:      "Failed strategy attempts observed before the race ended",
		},
		[]string{"strategy"},
	)

	poolSlots = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "dispatchd",
			Subsystem: "pool",
			Name:      "slots",
			Help:      "Backend slots by state",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(dispatchTotal, dispatchDuration, strategyWins, strategyFailures, poolSlots)
}

func observeResult(r Result) {
	outcome := "success"
	if r.Err != nil {
		outcome = string(r.Err.Kind)
	}
	dispatchTotal.WithLabelValues(string(r.Mode), outcome).Inc()
	dispatchDuration.WithLabelValues(string(r.Mode)).Observe(r.Elapsed.Seconds())
}

func observePool(st pool.Status) {
	poolSlots.WithLabelValues("busy").Set(float64(st.Busy))
	poolSlots.WithLabelValues("free").Set(float64(st.Free))
}
