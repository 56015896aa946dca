package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus metrics of screen sessions
type Collector struct {
	BytesFed          prometheus.Counter
	WindowsSuppressed prometheus.Counter
	CellsWritten      prometheus.Counter
	CellWriteErrors   prometheus.Counter
	Snapshots         prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotRows      prometheus.Histogram
	SessionsActive    prometheus.Gauge
	SourceReadErrors  *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a collector registered on its own registry, so several
// collectors can coexist in one process
func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		BytesFed: factory.NewCounter(prometheus.CounterOpts{
			Name: "screensync_bytes_fed_total",
			Help: "Bytes passed to Feed, before filtering",
		}),
		WindowsSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "screensync_dcs_windows_suppressed_total",
			Help: "DCS introducer windows removed by the input filter",
		}),
		CellsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "screensync_cells_written_total",
			Help: "Cells written into the screen model",
		}),
		CellWriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "screensync_cell_write_errors_total",
			Help: "Cell writes rejected by the screen model",
		}),
		Snapshots: factory.NewCounter(prometheus.CounterOpts{
			Name: "screensync_snapshots_total",
			Help: "Completed snapshots",
		}),
		SnapshotDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "screensync_snapshot_duration_seconds",
			Help:    "Snapshot duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		SnapshotRows: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "screensync_snapshot_rows",
			Help:    "Rows copied per snapshot, scrollback included",
			Buckets: prometheus.ExponentialBuckets(24, 4, 8),
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "screensync_sessions_active",
			Help: "Sessions started and not yet shut down",
		}),
		SourceReadErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "screensync_source_read_errors_total",
			Help: "Errors reading from byte sources",
		}, []string{"source"}),
	}
}

// ObserveSnapshot records one finished snapshot
func (c *Collector) ObserveSnapshot(d time.Duration, rows int) {
	if c == nil {
		return
	}
	c.Snapshots.Inc()
	c.SnapshotDuration.Observe(d.Seconds())
	c.SnapshotRows.Observe(float64(rows))
}

// Registry returns the registry the collector's metrics live in
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
