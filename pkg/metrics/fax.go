package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// FaxMetrics records rating and billing observability counters.
type FaxMetrics struct {
	submitted       *prometheus.CounterVec
	delivered       *prometheus.CounterVec
	failed          *prometheus.CounterVec
	creditsConsumed prometheus.Counter
	lookupCacheHit  *prometheus.CounterVec
	lookupCacheMiss prometheus.Counter
	ratingFailOpen  prometheus.Counter
	duplicateEvents *prometheus.CounterVec
}

// NewFaxMetrics registers the fax metrics on the provided registerer.
func NewFaxMetrics(reg prometheus.Registerer) *FaxMetrics {
	if reg == nil {
		return &FaxMetrics{}
	}
	submitted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fax_submitted_total",
		Help: "Fax jobs accepted for sending.",
	}, []string{"provider"})
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fax_delivered_total",
		Help: "Fax jobs confirmed delivered by the carrier.",
	}, []string{"provider"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fax_failed_total",
		Help: "Fax jobs that ended failed or cancelled.",
	}, []string{"provider", "status"})
	creditsConsumed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fax_credits_consumed_total",
		Help: "Credits deducted on confirmed deliveries.",
	})
	lookupCacheHit := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fax_lookup_cache_hits_total",
		Help: "Carrier lookup cache hits by tier.",
	}, []string{"tier"})
	lookupCacheMiss := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fax_lookup_cache_misses_total",
		Help: "Carrier lookups that reached the external API.",
	})
	ratingFailOpen := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fax_rating_fail_open_total",
		Help: "Rating decisions that fell back to the default per-page cost.",
	})
	duplicateEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fax_webhook_duplicates_total",
		Help: "Provider callbacks discarded by the idempotency guard.",
	}, []string{"provider"})
	reg.MustRegister(
		submitted, delivered, failed, creditsConsumed,
		lookupCacheHit, lookupCacheMiss, ratingFailOpen, duplicateEvents,
	)
	return &FaxMetrics{
		submitted:       submitted,
		delivered:       delivered,
		failed:          failed,
		creditsConsumed: creditsConsumed,
		lookupCacheHit:  lookupCacheHit,
		lookupCacheMiss: lookupCacheMiss,
		ratingFailOpen:  ratingFailOpen,
		duplicateEvents: duplicateEvents,
	}
}

// IncSubmitted counts an accepted fax submission.
func (m *FaxMetrics) IncSubmitted(provider string) {
	if m == nil || m.submitted == nil {
		return
	}
	m.submitted.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncDelivered counts a confirmed delivery.
func (m *FaxMetrics) IncDelivered(provider string) {
	if m == nil || m.delivered == nil {
		return
	}
	m.delivered.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncFailed counts a failed or cancelled fax.
func (m *FaxMetrics) IncFailed(provider, status string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(provider), normalizeLabel(status)).Inc()
}

// AddCreditsConsumed adds to the consumed-credit counter.
func (m *FaxMetrics) AddCreditsConsumed(amount int) {
	if m == nil || m.creditsConsumed == nil || amount <= 0 {
		return
	}
	m.creditsConsumed.Add(float64(amount))
}

// IncLookupCacheHit counts a cache hit on the named tier.
func (m *FaxMetrics) IncLookupCacheHit(tier string) {
	if m == nil || m.lookupCacheHit == nil {
		return
	}
	m.lookupCacheHit.WithLabelValues(normalizeLabel(tier)).Inc()
}

// IncLookupCacheMiss counts a lookup that went to the external API.
func (m *FaxMetrics) IncLookupCacheMiss() {
	if m == nil || m.lookupCacheMiss == nil {
		return
	}
	m.lookupCacheMiss.Inc()
}

// IncRatingFailOpen counts a fail-open rating decision.
func (m *FaxMetrics) IncRatingFailOpen() {
	if m == nil || m.ratingFailOpen == nil {
		return
	}
	m.ratingFailOpen.Inc()
}

// IncDuplicateEvent counts a discarded duplicate callback.
func (m *FaxMetrics) IncDuplicateEvent(provider string) {
	if m == nil || m.duplicateEvents == nil {
		return
	}
	m.duplicateEvents.WithLabelValues(normalizeLabel(provider)).Inc()
}
