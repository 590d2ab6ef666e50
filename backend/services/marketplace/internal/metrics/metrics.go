// Package metrics holds the prometheus collectors of the marketplace service. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector the service exports.
type Metrics struct {
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	bookingsCreated  *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	ledgerDeltas     *prometheus.CounterVec
	debitsDeduped    prometheus.Counter
	wsSessions       prometheus.Gauge
	creditsPurchased prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugin_http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plugin_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		bookingsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugin_bookings_created_total",
				Help: "Bookings created, by payment mode.",
			},
			[]string{"mode"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugin_booking_transitions_total",
				Help: "Booking status transitions applied, by target status.",
			},
			[]string{"status"},
		),
		ledgerDeltas: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugin_ledger_deltas_total",
				Help: "Credit deltas attempted, by direction and outcome.",
			},
			[]string{"direction", "outcome"},
		),
		debitsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plugin_driver_debits_deduplicated_total",
			Help: "Driver debits skipped because the booking was already debited in the session.",
		}),
		wsSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plugin_ws_sessions",
			Help: "Open realtime sessions.",
		}),
		creditsPurchased: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plugin_credits_purchased_total",
			Help: "Green credits granted through simulated purchases.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.httpRequests,
			m.httpDuration,
			m.bookingsCreated,
			m.transitions,
			m.ledgerDeltas,
			m.debitsDeduped,
			m.wsSessions,
			m.creditsPurchased,
		)
	}
	return m
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// BookingCreated counts a new booking.
func (m *Metrics) BookingCreated(mode string) {
	if m == nil {
		return
	}
	m.bookingsCreated.WithLabelValues(mode).Inc()
}

// Transition counts an applied status change.
func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

// LedgerDelta counts a credit delta attempt.
func (m *Metrics) LedgerDelta(delta int, err error) {
	if m == nil {
		return
	}
	direction := "credit"
	if delta < 0 {
		direction = "debit"
	}
	outcome := "applied"
	if err != nil {
		outcome = "failed"
	}
	m.ledgerDeltas.WithLabelValues(direction, outcome).Inc()
}

// DebitDeduplicated counts a suppressed duplicate debit.
func (m *Metrics) DebitDeduplicated() {
	if m == nil {
		return
	}
	m.debitsDeduped.Inc()
}

// CreditsPurchased counts credits granted by a purchase.
func (m *Metrics) CreditsPurchased(n int) {
	if m == nil {
		return
	}
	m.creditsPurchased.Add(float64(n))
}

// SessionOpened tracks a realtime session.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.wsSessions.Inc()
}

// SessionClosed tracks a closed realtime session.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.wsSessions.Dec()
}
