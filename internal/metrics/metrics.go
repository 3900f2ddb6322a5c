// Package metrics exposes Prometheus instrumentation for the archive service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vae"

var (
	// RecordsStreamed counts records decoded by query and tail iterators.
	RecordsStreamed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_streamed_total",
			Help:      "Total number of records decoded from a store",
		},
		[]string{"store"},
	)

	// TailPolls counts live-tail poll cycles by outcome ("rows" or "empty").
	TailPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tail_polls_total",
			Help:      "Total number of live-tail poll cycles",
		},
		[]string{"store", "result"},
	)

	// RecordsWritten counts rows appended or upserted.
	RecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Total number of records written to a store",
		},
		[]string{"store"},
	)

	// SchemaEvolutions counts columns added at write time.
	SchemaEvolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_columns_added_total",
			Help:      "Total number of columns added by schema-on-write",
		},
		[]string{"table"},
	)

	// CodecErrors counts failed blob conversions.
	CodecErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "codec_errors_total",
			Help:      "Total number of waveform codec failures",
		},
		[]string{"format", "op"},
	)

	// FeatureDuration observes feature extraction time per transient.
	FeatureDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feature_extraction_duration_seconds",
			Help:      "Time to compute all features of one transient record",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)

	// AlertsFired counts notifications raised by the alerter.
	AlertsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_fired_total",
			Help:      "Total number of alerts fired",
		},
		[]string{"alert_type", "severity"},
	)

	// StoreRows reports the row count of each store's main table.
	StoreRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_rows",
			Help:      "Number of rows in the main data table of a store",
		},
		[]string{"store"},
	)

	// StoreFileStatus reports the writer-active flag of each store.
	StoreFileStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_file_status",
			Help:      "Writer status of a store (0 offline, 1 suspended, 2 active)",
		},
		[]string{"store"},
	)

	// HTTPRequests observes API request latency.
	HTTPRequests = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "code"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
