package tablecache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	lookupHit   = "hit"
	lookupMiss  = "miss"
	lookupError = "error"

	writeOK    = "ok"
	writeError = "error"
)

// Metrics counts cache traffic per table. A nil *Metrics records nothing.
type Metrics struct {
	lookups       *prometheus.CounterVec
	writes        *prometheus.CounterVec
	invalidations *prometheus.CounterVec
}

// NewMetrics registers the table cache counters on reg. A nil reg returns
// nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	return &Metrics{
		lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tablecache_lookups_total",
			Help: "Total number of cache store lookups.",
		}, []string{"table", "result" /* hit | miss | error */}),
		writes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tablecache_writes_total",
			Help: "Total number of cache store writes.",
		}, []string{"table", "result" /* ok | error */}),
		invalidations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tablecache_invalidations_total",
			Help: "Total number of cache entries removed after table mutations.",
		}, []string{"table", "op"}),
	}
}

func (m *Metrics) lookup(table, result string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(table, result).Inc()
}

func (m *Metrics) write(table string, err error) {
	if m == nil {
		return
	}
	result := writeOK
	if err != nil {
		result = writeError
	}
	m.writes.WithLabelValues(table, result).Inc()
}

func (m *Metrics) invalidation(table, op string) {
	if m == nil {
		return
	}
	m.invalidations.WithLabelValues(table, op).Inc()
}
