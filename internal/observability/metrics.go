package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seats_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	ReservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seats_reservations_total",
			Help: "Seat reservation attempts by outcome",
		},
		[]string{"outcome"},
	)

	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seats_store_op_seconds",
			Help:    "Duration of seat store operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"driver", "op"},
	)

	SideEffectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seats_side_effect_failures_total",
			Help: "Failed audit, event or cache side effects after a booking",
		},
		[]string{"kind"},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seats_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)

// ObserveStoreOp records the time since start. Use as defer ObserveStoreOp(driver, op, time.Now()).
func ObserveStoreOp(driver, op string, start time.Time) {
	StoreOpDuration.WithLabelValues(driver, op).Observe(time.Since(start).Seconds())
}
