// Package telemetry exposes the Prometheus collectors this repo's
// ambient metrics surface uses (SPEC_FULL.md §6): request/retry counts
// from the Directory Client, allocation counts from the Allocator, and
// sync duration and files-rewritten counts from the Reconciler and
// Materialiser. Nothing here is gated by spec.md's Non-goals — those
// exclude password sync and the like, not observability.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every collector this repo registers. The zero value is
// not usable — create with New, which also registers every collector
// against reg.
type Metrics struct {
	DirectoryRequests *prometheus.CounterVec
	DirectoryRetries  prometheus.Counter
	Allocations       *prometheus.CounterVec
	SyncDuration      prometheus.Histogram
	FilesRewritten    prometheus.Counter
	UsersActive       prometheus.Gauge
	GroupsActive      prometheus.Gauge
}

// New builds and registers every collector against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DirectoryRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "idsync",
			Subsystem: "directory",
			Name:      "requests_total",
			Help:      "Directory client operations started, by operation (a paged listing counts once).",
		}, []string{"op"}),
		DirectoryRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "idsync",
			Subsystem: "directory",
			Name:      "retries_total",
			Help:      "Directory API requests retried after a transient failure.",
		}),
		Allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "idsync",
			Subsystem: "allocate",
			Name:      "assignments_total",
			Help:      "POSIX attribute assignments made, by kind (uid, gid, username).",
		}, []string{"kind"}),
		SyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "idsync",
			Subsystem: "reconcile",
			Name:      "sync_duration_seconds",
			Help:      "Wall-clock duration of a full reconcile pass.",
			Buckets:   prometheus.DefBuckets,
		}),
		FilesRewritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "idsync",
			Subsystem: "materialize",
			Name:      "files_rewritten_total",
			Help:      "Materialise passes that actually rewrote passwd/group/shadow.",
		}),
		UsersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "idsync",
			Subsystem: "cache",
			Name:      "users_active",
			Help:      "Active users in the identity cache as of the last sync.",
		}),
		GroupsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "idsync",
			Subsystem: "cache",
			Name:      "groups_active",
			Help:      "Active groups in the identity cache as of the last sync.",
		}),
	}

	reg.MustRegister(
		m.DirectoryRequests,
		m.DirectoryRetries,
		m.Allocations,
		m.SyncDuration,
		m.FilesRewritten,
		m.UsersActive,
		m.GroupsActive,
	)
	return m
}
