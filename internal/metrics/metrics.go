// Package metrics defines the shipper's Prometheus instrumentation.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "secor"

var (
	MessagesAppended = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_appended_total",
			Help:      "Messages appended to local files, by topic.",
		},
		[]string{"topic"},
	)
	MessagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Messages dropped after a parse or append failure, by topic and stage.",
		},
		[]string{"topic", "stage"},
	)
	FilesUploaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_uploaded_total",
			Help:      "Local files successfully uploaded to the object store, by topic.",
		},
		[]string{"topic"},
	)
	FilesSkippedDuplicate = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_skipped_duplicate_total",
			Help:      "Uploads skipped because the remote object already holds byte-identical content.",
		},
		[]string{"topic"},
	)
	UploadFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_failures_total",
			Help:      "Upload attempts that exhausted retries, by topic.",
		},
		[]string{"topic"},
	)
	UploadLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_latency_ms",
			Help:      "Time from upload start to offset commit, in milliseconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"topic"},
	)
	OpenFiles = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_files",
			Help:      "Local files currently open for append, by topic.",
		},
		[]string{"topic"},
	)
	CommittedOffset = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "committed_offset",
			Help:      "Last committed offset per topic/partition.",
		},
		[]string{"topic", "partition"},
	)
	OrphanFilesRecovered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphan_files_recovered_total",
			Help:      "Local files found on startup and resumed for upload, by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		MessagesAppended,
		MessagesDropped,
		FilesUploaded,
		FilesSkippedDuplicate,
		UploadFailures,
		UploadLatency,
		OpenFiles,
		CommittedOffset,
		OrphanFilesRecovered,
	)
}
