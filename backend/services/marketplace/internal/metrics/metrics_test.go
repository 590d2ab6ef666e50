package metrics

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.LedgerDelta(6, nil)
	m.LedgerDelta(-6, nil)
	m.LedgerDelta(-6, errors.New("down"))
	m.DebitDeduplicated()
	m.Transition("accepted")
	m.ObserveHTTP(http.MethodPost, "/api/bookings", http.StatusCreated, 10*time.Millisecond)
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerDeltas.WithLabelValues("credit", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerDeltas.WithLabelValues("debit", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerDeltas.WithLabelValues("debit", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.debitsDeduped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/api/bookings", "201")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.wsSessions))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.LedgerDelta(1, nil)
		m.BookingCreated("credits")
		m.SessionClosed()
		m.ObserveHTTP("GET", "/", 200, time.Second)
	})
}
