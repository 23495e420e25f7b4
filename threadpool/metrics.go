package threadpool

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds optional Prometheus collectors for a pool. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	submitted prometheus.Counter
	completed prometheus.Counter
	panicked  prometheus.Counter
	pending   prometheus.GaugeFunc
}

// WithMetrics registers pool metrics named <prefix>_* with reg once the pool is
// built. Collectors that cannot be registered (for example a duplicate prefix)
// are logged and left unregistered.
func WithMetrics(reg prometheus.Registerer, prefix string) Option {
	return func(p *Pool) {
		p.metricsReg = reg
		p.metricsPrefix = prefix
	}
}

func newMetrics(p *Pool, reg prometheus.Registerer, prefix string) *Metrics {
	m := &Metrics{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_submitted_total",
			Help: "Total tasks accepted by the pool",
		}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_completed_total",
			Help: "Total tasks executed by pool workers",
		}),
		panicked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_panicked_total",
			Help: "Total tasks that panicked",
		}),
		pending: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: prefix + "_pending_tasks",
			Help: "Tasks queued but not yet claimed by a worker",
		}, func() float64 {
			return float64(p.Pending())
		}),
	}

	for _, c := range []prometheus.Collector{m.submitted, m.completed, m.panicked, m.pending} {
		if err := reg.Register(c); err != nil {
			p.logger.Warn().Err(err).Str("prefix", prefix).Msg("failed to register pool metric")
		}
	}
	return m
}

func (m *Metrics) recordSubmit() {
	if m != nil {
		m.submitted.Inc()
	}
}

func (m *Metrics) recordComplete() {
	if m != nil {
		m.completed.Inc()
	}
}

func (m *Metrics) recordPanic() {
	if m != nil {
		m.panicked.Inc()
	}
}
