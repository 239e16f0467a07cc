package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegistry(reg)

	r.SessionOpened("tcp")
	r.SessionOpened("tcp")
	r.SessionClosed("tcp")
	r.RecordRequest("tcp", "ok")
	r.RecordRequest("tcp", "error")
	r.RecordRequest("tcp", "ok")
	r.RecordError("decode")
	r.RecordLatency("process", 0.002)

	rec := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	out := string(body)
	assert.Contains(t, out, `quantbridge_sessions_active{transport="tcp"} 1`)
	assert.Contains(t, out, `quantbridge_requests_total{result="ok",transport="tcp"} 2`)
	assert.Contains(t, out, `quantbridge_errors_total{type="decode"} 1`)
	assert.Contains(t, out, `quantbridge_operation_duration_seconds_count{operation="process"} 1`)
}
