package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const FlowlensImporterMetricsPrefix = "flowlens_importer_"

type FetchError string

const (
	FetchErrorSourceNotFound FetchError = "source_not_found"
	FetchErrorNetwork        FetchError = "network"
	FetchErrorOther          FetchError = "other"
)

var recordsImportedCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: FlowlensImporterMetricsPrefix + "records_imported",
		Help: "Number of records written to the destination",
	},
	[]string{"data_source", "entity_type"},
)

var recordsSkippedCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: FlowlensImporterMetricsPrefix + "records_skipped",
		Help: "Number of records that could not be converted and were skipped",
	},
	[]string{"data_source", "entity_type"},
)

var writeErrorsCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: FlowlensImporterMetricsPrefix + "write_errors",
		Help: "Number of failed destination operations",
	},
	[]string{"data_source", "entity_type"},
)

var fetchErrorsCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: FlowlensImporterMetricsPrefix + "fetch_errors",
		Help: "Number of failed page fetches grouped by error kind",
	},
	[]string{"data_source", "entity_type", "error"},
)

var cycleLatencyHist = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    FlowlensImporterMetricsPrefix + "cycle_latency_seconds",
		Help:    "Time taken by one fetch-write-advance cycle in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 15),
	},
	[]string{"data_source", "entity_type"},
)

var backoffGauge = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: FlowlensImporterMetricsPrefix + "backoff_seconds",
		Help: "Current backoff of an import stream in seconds",
	},
	[]string{"data_source", "entity_type"},
)

var pendingJobsGauge = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: FlowlensImporterMetricsPrefix + "pending_import_jobs",
		Help: "Number of import cycles currently in flight",
	},
)

var checkpointErrorsCounter = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: FlowlensImporterMetricsPrefix + "checkpoint_errors",
		Help: "Number of failed checkpoint writes",
	},
)

type Metrics struct{}

var m = &Metrics{}

func Get() *Metrics {
	return m
}

func (m *Metrics) RecordImported(dataSource string, entityType string, n int) {
	recordsImportedCounter.WithLabelValues(dataSource, entityType).Add(float64(n))
}

func (m *Metrics) RecordSkipped(dataSource string, entityType string, n int) {
	recordsSkippedCounter.WithLabelValues(dataSource, entityType).Add(float64(n))
}

func (m *Metrics) RecordWriteErrors(dataSource string, entityType string, n int) {
	writeErrorsCounter.WithLabelValues(dataSource, entityType).Add(float64(n))
}

func (m *Metrics) RecordFetchError(dataSource string, entityType string, kind FetchError) {
	fetchErrorsCounter.WithLabelValues(dataSource, entityType, string(kind)).Inc()
}

func (m *Metrics) RecordCycle(dataSource string, entityType string, duration time.Duration) {
	cycleLatencyHist.WithLabelValues(dataSource, entityType).Observe(duration.Seconds())
}

func (m *Metrics) SetBackoff(dataSource string, entityType string, backoff time.Duration) {
	backoffGauge.WithLabelValues(dataSource, entityType).Set(backoff.Seconds())
}

func (m *Metrics) JobStarted() {
	pendingJobsGauge.Inc()
}

func (m *Metrics) JobFinished() {
	pendingJobsGauge.Dec()
}

func (m *Metrics) RecordCheckpointError() {
	checkpointErrorsCounter.Inc()
}
