// Package monitoring exposes Prometheus metrics and health snapshots for
// the build pipeline and the serving API.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "citypath"

// Metrics holds the Prometheus counters, histograms, and gauges.
type Metrics struct {
	// Build metrics.
	RastersRead       *prometheus.CounterVec // labels: layer
	SlicesAligned     *prometheus.CounterVec // labels: layer
	SamplesOutOfBound *prometheus.CounterVec // labels: layer
	HexesCovered      prometheus.Gauge
	RowsWritten       prometheus.Gauge
	RowsDropped       prometheus.Gauge
	StageDuration     *prometheus.HistogramVec // labels: stage

	// Serve metrics.
	SnapshotRows    prometheus.Gauge
	ScoringRequests *prometheus.CounterVec // labels: operation
	OverlayTiles    *prometheus.CounterVec // labels: layer, result
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RastersRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rasters_read_total",
			Help:      "Raster files read, by layer.",
		}, []string{"layer"}),
		SlicesAligned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slices_aligned_total",
			Help:      "Time slices resampled onto the reference grid, by layer.",
		}, []string{"layer"}),
		SamplesOutOfBound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_out_of_bounds_total",
			Help:      "Hex centroids that fell outside the reference grid, by layer.",
		}, []string{"layer"}),
		HexesCovered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hexes_covered",
			Help:      "Hex cells in the last coverage.",
		}),
		RowsWritten: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rows_written",
			Help:      "Feature rows persisted by the last build.",
		}),
		RowsDropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rows_dropped",
			Help:      "Hex cells dropped by the last build because every metric was missing.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "build_stage_duration_seconds",
			Help:      "Duration of each build stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"stage"}),
		SnapshotRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_rows",
			Help:      "Rows in the loaded feature snapshot.",
		}),
		ScoringRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_requests_total",
			Help:      "Scoring requests by operation.",
		}, []string{"operation"}),
		OverlayTiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overlay_tiles_total",
			Help:      "Proxied overlay tiles by layer and result (hit, miss, error).",
		}, []string{"layer", "result"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RastersRead,
		m.SlicesAligned,
		m.SamplesOutOfBound,
		m.HexesCovered,
		m.RowsWritten,
		m.RowsDropped,
		m.StageDuration,
		m.SnapshotRows,
		m.ScoringRequests,
		m.OverlayTiles,
	}
}
