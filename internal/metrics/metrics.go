// Package metrics provides Prometheus metrics for minaret.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolutionsTotal counts resolve calls by mode and outcome.
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minaret",
			Name:      "resolutions_total",
			Help:      "Total number of organization resolutions",
		},
		[]string{"mode", "outcome"},
	)

	// CacheDecisionsTotal counts why the resolution cache was reused or refreshed.
	CacheDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minaret",
			Name:      "resolution_cache_decisions_total",
			Help:      "Resolution cache decisions by reason",
		},
		[]string{"reason"},
	)

	// DirectoryLookupDuration measures nearest-neighbor lookups.
	DirectoryLookupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "minaret",
			Name:      "directory_lookup_duration_seconds",
			Help:      "Duration of nearest organization lookups in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	// PrefetchTotal counts schedule window prefetches.
	PrefetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minaret",
			Name:      "schedule_prefetch_total",
			Help:      "Schedule window prefetches by status",
		},
		[]string{"status"},
	)

	// TrackingSessions tracks live location tracking sessions.
	TrackingSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "minaret",
			Name:      "tracking_sessions",
			Help:      "Number of active location tracking sessions",
		},
	)
)

// RecordResolution records a finished resolve call.
func RecordResolution(mode, outcome string) {
	ResolutionsTotal.WithLabelValues(mode, outcome).Inc()
}

// RecordCacheDecision records a cache reuse or refresh reason.
func RecordCacheDecision(reason string) {
	CacheDecisionsTotal.WithLabelValues(reason).Inc()
}

// RecordDirectoryLookup records a directory lookup and its duration.
func RecordDirectoryLookup(status string, seconds float64) {
	DirectoryLookupDuration.WithLabelValues(status).Observe(seconds)
}

func RecordPrefetch(status string) {
	PrefetchTotal.WithLabelValues(status).Inc()
}
