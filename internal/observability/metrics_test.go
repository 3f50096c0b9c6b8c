package observability

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSessionLifecycle(t *testing.T) {
	m := getMetrics()
	created := testutil.ToFloat64(m.sessionsCreated)
	terminated := testutil.ToFloat64(m.sessionsTerminated)

	RecordSessionCreated(3)
	assert.Equal(t, created+1, testutil.ToFloat64(m.sessionsCreated))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.activeSessions))

	RecordSessionTerminated(2)
	assert.Equal(t, terminated+1, testutil.ToFloat64(m.sessionsTerminated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.activeSessions))
}

func TestRecordFetch(t *testing.T) {
	m := getMetrics()
	before := testutil.ToFloat64(m.fetchTotal.WithLabelValues("not_found"))

	RecordFetch("not_found", 5*time.Millisecond, 0)

	assert.Equal(t, before+1, testutil.ToFloat64(m.fetchTotal.WithLabelValues("not_found")))
}

func TestMetricsHandler(t *testing.T) {
	RecordHTTPRequest("sessions.list", 200)
	SetEventClients(1)

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "smprofiler_http_requests_total")
	assert.Contains(t, string(body), "smprofiler_event_clients 1")
}
