// Package metrics exposes the directory's Prometheus instrumentation,
// following the teacher's own choice of github.com/prometheus/client_golang
// for observability.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Uploads counts put() calls by outcome ("ok" or an apperr.Kind).
	Uploads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keydirectory",
		Name:      "uploads_total",
		Help:      "Number of key upload attempts, labeled by outcome.",
	}, []string{"outcome"})

	// Verifications counts verify() calls by outcome.
	Verifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keydirectory",
		Name:      "verifications_total",
		Help:      "Number of user-id verification attempts, labeled by outcome.",
	}, []string{"outcome"})

	// PurgedRecords counts records removed by the lazy purge.
	PurgedRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "keydirectory",
		Name:      "purged_records_total",
		Help:      "Number of unverified key records purged for exceeding the age horizon.",
	})

	// PendingSignatureBatches is a gauge of how many keys currently carry an
	// unconfirmed pending-signatures batch.
	PendingSignatureBatches = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "keydirectory",
		Name:      "pending_signature_batches",
		Help:      "Number of keys with an outstanding pendingSignatures batch.",
	})
)

func init() {
	prometheus.MustRegister(Uploads, Verifications, PurgedRecords, PendingSignatureBatches)
}
