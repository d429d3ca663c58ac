// Package metrics holds the Prometheus collectors of the ticketing core.
// They are registered on the default registry and served at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_attempts_total",
			Help: "Reservation attempts by outcome",
		},
		[]string{"event_id", "outcome"},
	)

	unitsReserved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_units_total",
			Help: "Ticket units placed on hold",
		},
		[]string{"event_id"},
	)

	reservationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reservation_duration_seconds",
			Help:    "Time spent in the reservation transaction",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"event_id"},
	)

	orderNumberRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reservation_order_number_retries_total",
			Help: "Order number regenerations after a duplicate key",
		},
	)

	sweptReservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservations_swept_total",
			Help: "Pending reservations rejected after their hold window",
		},
		[]string{"event_id", "trigger"},
	)

	scans = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkin_scans_total",
			Help: "Check-in scan attempts by outcome and reason",
		},
		[]string{"event_id", "outcome", "reason"},
	)

	occupancy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "event_occupancy",
			Help: "Last computed occupancy per event",
		},
		[]string{"event_id", "kind"},
	)

	publishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "side_effect_failures_total",
			Help: "Best-effort post-commit side effects that failed",
		},
		[]string{"target"},
	)
)

func id(eventID uint64) string { return strconv.FormatUint(eventID, 10) }

// ReservationAttempt counts one call to the coordinator.
func ReservationAttempt(eventID uint64, outcome string) {
	reservationAttempts.WithLabelValues(id(eventID), outcome).Inc()
}

// ReservationCreated records a committed reservation.
func ReservationCreated(eventID uint64, quantity uint32, took time.Duration) {
	unitsReserved.WithLabelValues(id(eventID)).Add(float64(quantity))
	reservationDuration.WithLabelValues(id(eventID)).Observe(took.Seconds())
}

// OrderNumberRetry counts a regenerated order number.
func OrderNumberRetry() { orderNumberRetries.Inc() }

// Swept counts reservations rejected by the sweeper.  trigger is "lazy"
// or "background".
func Swept(eventID uint64, trigger string, n int64) {
	if n > 0 {
		sweptReservations.WithLabelValues(id(eventID), trigger).Add(float64(n))
	}
}

// Scan counts a check-in attempt.  reason is empty on success.
func Scan(eventID uint64, outcome, reason string) {
	scans.WithLabelValues(id(eventID), outcome, reason).Inc()
}

// Occupancy publishes the last computed counters of an event.
func Occupancy(eventID uint64, validated, pending, reserved uint64) {
	occupancy.WithLabelValues(id(eventID), "validated").Set(float64(validated))
	occupancy.WithLabelValues(id(eventID), "pending").Set(float64(pending))
	occupancy.WithLabelValues(id(eventID), "reserved").Set(float64(reserved))
}

// SideEffectFailed counts a failed publish, push or cache operation.
func SideEffectFailed(target string) { publishFailures.WithLabelValues(target).Inc() }
