package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics records counters for the sync protocol endpoints.
type SyncMetrics struct {
	eventsAccepted *prometheus.CounterVec
	eventsRejected *prometheus.CounterVec
	hashChecks     prometheus.Counter
	pullDuration   prometheus.Histogram
	pushDuration   prometheus.Histogram
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	eventsAccepted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_events_accepted_total",
		Help: "Events accepted by the sync endpoint.",
	}, []string{"aggregate_type"})
	eventsRejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_events_rejected_total",
		Help: "Events rejected by validation at the sync endpoint.",
	}, []string{"reason"})
	hashChecks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sync_hash_checks_total",
		Help: "Hash comparison requests served.",
	})
	pullDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_pull_duration_seconds",
		Help:    "Duration of incremental event fetches.",
		Buckets: prometheus.DefBuckets,
	})
	pushDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_push_duration_seconds",
		Help:    "Duration of accept-events batches.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(eventsAccepted, eventsRejected, hashChecks, pullDuration, pushDuration)
	return &SyncMetrics{
		eventsAccepted: eventsAccepted,
		eventsRejected: eventsRejected,
		hashChecks:     hashChecks,
		pullDuration:   pullDuration,
		pushDuration:   pushDuration,
	}
}

// IncAccepted increments the accepted counter for the aggregate type.
func (s *SyncMetrics) IncAccepted(aggregateType string) {
	if s == nil || s.eventsAccepted == nil {
		return
	}
	s.eventsAccepted.WithLabelValues(normalizeLabel(aggregateType)).Inc()
}

// IncRejected increments the rejected counter for the given reason label.
func (s *SyncMetrics) IncRejected(reason string) {
	if s == nil || s.eventsRejected == nil {
		return
	}
	s.eventsRejected.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncHashCheck counts one hash comparison request.
func (s *SyncMetrics) IncHashCheck() {
	if s == nil || s.hashChecks == nil {
		return
	}
	s.hashChecks.Inc()
}

// ObservePull records the duration of an incremental fetch.
func (s *SyncMetrics) ObservePull(duration time.Duration) {
	if s == nil || s.pullDuration == nil {
		return
	}
	s.pullDuration.Observe(duration.Seconds())
}

// ObservePush records the duration of an accept-events batch.
func (s *SyncMetrics) ObservePush(duration time.Duration) {
	if s == nil || s.pushDuration == nil {
		return
	}
	s.pushDuration.Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
