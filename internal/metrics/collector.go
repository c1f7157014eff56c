package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"webfile-go/internal/vault"
	"webfile-go/internal/webfile"
)

// Collector implements webfile.Metrics and vault.Metrics.
type Collector struct {
	uploadsTotal         *prometheus.CounterVec
	uploadBytes          prometheus.Histogram
	blobsDeleted         prometheus.Counter
	reconciliationsTotal prometheus.Counter

	vaultOpsTotal    *prometheus.CounterVec
	vaultOpDuration  *prometheus.HistogramVec
	vaultBytesTotal  *prometheus.CounterVec
	commandsTotal    *prometheus.CounterVec
	commandDurations *prometheus.HistogramVec
}

var (
	_ webfile.Metrics = (*Collector)(nil)
	_ vault.Metrics   = (*Collector)(nil)
)

// NewCollector creates a collector registered with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		uploadsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webfile_uploads_total",
				Help: "Total number of stored files by whether their content was already present",
			},
			[]string{"deduplicated"},
		),
		uploadBytes: f.NewHistogram(
			prometheus.HistogramOpts{
				Name: "webfile_upload_size_bytes",
				Help: "Size of uploaded files in bytes",
				Buckets: []float64{
					4096,       // 4KB
					65536,      // 64KB
					1048576,    // 1MB
					10485760,   // 10MB
					104857600,  // 100MB
					1073741824, // 1GB
				},
			},
		),
		blobsDeleted: f.NewCounter(
			prometheus.CounterOpts{
				Name: "webfile_blobs_deleted_total",
				Help: "Total number of blobs removed after losing their last reference",
			},
		),
		reconciliationsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "webfile_reconciliations_total",
				Help: "Total number of storage inconsistencies recorded for repair",
			},
		),
		vaultOpsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webfile_vault_operations_total",
				Help: "Total number of vault operations by operation, area and status",
			},
			[]string{"operation", "area", "status"},
		),
		vaultOpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "webfile_vault_operation_duration_seconds",
				Help: "Duration of vault operations in seconds",
				Buckets: []float64{
					0.001, // 1ms
					0.01,  // 10ms
					0.1,   // 100ms
					0.5,   // 500ms
					1.0,   // 1s
					5.0,   // 5s
					30.0,  // 30s
				},
			},
			[]string{"operation"},
		),
		vaultBytesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webfile_vault_bytes_total",
				Help: "Total bytes moved into and out of the vault",
			},
			[]string{"direction"},
		),
		commandsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webfile_commands_total",
				Help: "Total number of CLI commands by kind and status",
			},
			[]string{"kind", "status"},
		),
		commandDurations: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webfile_command_duration_seconds",
				Help:    "Duration of journaled commands in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (c *Collector) UploadCompleted(deduplicated bool, size int64) {
	label := "false"
	if deduplicated {
		label = "true"
	}
	c.uploadsTotal.WithLabelValues(label).Inc()
	c.uploadBytes.Observe(float64(size))
}

func (c *Collector) BlobDeleted() {
	c.blobsDeleted.Inc()
}

func (c *Collector) ReconciliationRecorded() {
	c.reconciliationsTotal.Inc()
}

func (c *Collector) ObserveVaultOp(op string, area webfile.Area, elapsed time.Duration, err error) {
	c.vaultOpsTotal.WithLabelValues(op, string(area), status(err)).Inc()
	c.vaultOpDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (c *Collector) AddVaultBytes(direction string, n int64) {
	c.vaultBytesTotal.WithLabelValues(direction).Add(float64(n))
}

// ObserveCommand records one finished CLI command.
func (c *Collector) ObserveCommand(kind string, elapsed time.Duration, err error) {
	c.commandsTotal.WithLabelValues(kind, status(err)).Inc()
	c.commandDurations.WithLabelValues(kind).Observe(elapsed.Seconds())
}
