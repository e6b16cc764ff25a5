package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestCollectorCounters(t *testing.T) {
	c := NewCollector(4, 500*time.Millisecond, 5*time.Second)

	c.EventsDropped.WithLabelValues("stale_timestamp").Inc()
	c.EventsDropped.WithLabelValues("stale_timestamp").Inc()
	c.MessagesReceived.WithLabelValues("HfpData").Inc()
	c.PositionsPublished.Inc()

	out := scrape(t, c.Handler())
	assert.Contains(t, out, `vehicleposition_events_dropped_total{reason="stale_timestamp"} 2`)
	assert.Contains(t, out, `vehicleposition_messages_received_total{schema="HfpData"} 1`)
	assert.Contains(t, out, "vehicleposition_positions_published_total 1")
	assert.Contains(t, out, "vehicleposition_workers 4")
	assert.Contains(t, out, "vehicleposition_batch_window_seconds 0.5")
}

func TestRouter(t *testing.T) {
	c := NewCollector(1, 0, 5*time.Second)

	healthy := true
	r := c.Router(func() bool { return healthy })

	assert.Contains(t, scrape(t, r), "vehicleposition_max_time_difference_seconds 5")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	healthy = false
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
