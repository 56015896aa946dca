package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()

	a.BytesFed.Add(10)
	assert.Equal(t, 10.0, testutil.ToFloat64(a.BytesFed))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.BytesFed))
}

func TestObserveSnapshot(t *testing.T) {
	c := New()
	c.ObserveSnapshot(2*time.Millisecond, 124)
	c.ObserveSnapshot(time.Millisecond, 24)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Snapshots))
	assert.Equal(t, 1, testutil.CollectAndCount(c.SnapshotDuration))

	var nilCollector *Collector
	nilCollector.ObserveSnapshot(time.Second, 1)
}

func TestHandler(t *testing.T) {
	c := New()
	c.WindowsSuppressed.Inc()
	c.SourceReadErrors.WithLabelValues("serial").Inc()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "screensync_dcs_windows_suppressed_total 1")
	assert.Contains(t, body, `screensync_source_read_errors_total{source="serial"} 1`)
}
