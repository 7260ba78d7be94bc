package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

// QuotaMetrics groups the Prometheus collectors exported by the quota limiter.
// A nil *QuotaMetrics is valid and records nothing.
type QuotaMetrics struct {
	decisions     *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	invalidations *prometheus.CounterVec
	staleCache    prometheus.Counter
	storeErrors   prometheus.Counter
	rollovers     prometheus.Counter
}

// NewQuotaMetrics builds the collectors and registers them with reg when it is non-nil.
func NewQuotaMetrics(reg prometheus.Registerer) *QuotaMetrics {
	m := &QuotaMetrics{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quota_checkout_decisions_total",
				Help: "Checkout evaluations by decision",
			},
			[]string{"decision"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quota_order_count_cache_lookups_total",
				Help: "Order count cache lookups by result",
			},
			[]string{"result"},
		),
		invalidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quota_cache_invalidations_total",
				Help: "Order count cache invalidations by reason",
			},
			[]string{"reason"},
		),
		staleCache: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quota_stale_cache_detected_total",
			Help: "Cached order counts found to disagree with the order store",
		}),
		storeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quota_order_store_errors_total",
			Help: "Failed order store count queries",
		}),
		rollovers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quota_window_rollovers_total",
			Help: "Scheduled window rollovers observed",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.decisions, m.cacheLookups, m.invalidations, m.staleCache, m.storeErrors, m.rollovers)
	}
	return m
}

func (m *QuotaMetrics) decision(allowed bool) {
	if m == nil {
		return
	}
	if allowed {
		m.decisions.WithLabelValues("allowed").Inc()
	} else {
		m.decisions.WithLabelValues("blocked").Inc()
	}
}

func (m *QuotaMetrics) cacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
	} else {
		m.cacheLookups.WithLabelValues("miss").Inc()
	}
}

func (m *QuotaMetrics) invalidated(reason string) {
	if m != nil {
		m.invalidations.WithLabelValues(reason).Inc()
	}
}

func (m *QuotaMetrics) stale() {
	if m != nil {
		m.staleCache.Inc()
	}
}

func (m *QuotaMetrics) storeError() {
	if m != nil {
		m.storeErrors.Inc()
	}
}

func (m *QuotaMetrics) rollover() {
	if m != nil {
		m.rollovers.Inc()
	}
}
