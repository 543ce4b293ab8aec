package tenantconfig

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fallthrough reasons for the database step.
const (
	ReasonError       = "error"
	ReasonAbsent      = "absent"
	ReasonNotDatabase = "not_database"
)

const outcomeNotFound = "not_found"

// Metrics counts resolution outcomes. A nil Registerer yields unregistered collectors.
type Metrics struct {
	resolutions  *prometheus.CounterVec
	fallthroughs *prometheus.CounterVec
	cacheErrors  *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tourdesk",
			Subsystem: "tenant_config",
			Name:      "resolutions_total",
			Help:      "Tenant config resolutions by outcome (database, yaml, cache, not_found).",
		}, []string{"outcome"}),
		fallthroughs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tourdesk",
			Subsystem: "tenant_config",
			Name:      "database_fallthrough_total",
			Help:      "Database lookups that fell through to the file source, by reason.",
		}, []string{"reason"}),
		cacheErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tourdesk",
			Subsystem: "tenant_config",
			Name:      "cache_errors_total",
			Help:      "Cache backend failures by operation.",
		}, []string{"op"}),
	}
}

func (m *Metrics) resolved(outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) fellThrough(reason string) {
	if m == nil {
		return
	}
	m.fallthroughs.WithLabelValues(reason).Inc()
}

func (m *Metrics) cacheFailed(op string) {
	if m == nil {
		return
	}
	m.cacheErrors.WithLabelValues(op).Inc()
}
