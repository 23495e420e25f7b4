package asynclogger

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Statistics as Prometheus counters
type Metrics struct {
	collectors []prometheus.Collector
}

// WithMetrics registers counters named <prefix>_* with reg, read from the
// logger statistics at scrape time. Registration happens once every option
// has been applied.
func WithMetrics(reg prometheus.Registerer, prefix string) Option {
	return func(l *Logger) {
		l.metricsReg = reg
		l.metricsPrefix = prefix
	}
}

func newMetrics(l *Logger, reg prometheus.Registerer, prefix string) *Metrics {
	counter := func(name, help string, read func() int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: prefix + "_" + name,
			Help: help,
		}, func() float64 {
			return float64(read())
		})
	}

	m := &Metrics{
		collectors: []prometheus.Collector{
			counter("lines_total", "Lines accepted at or above the configured level", l.stats.TotalLogs.Load),
			counter("lines_dropped_total", "Lines lost before reaching a file", l.stats.DroppedLogs.Load),
			counter("lines_written_total", "Lines written to a log file", l.stats.LinesWritten.Load),
			counter("bytes_written_total", "Bytes written to log files", l.stats.BytesWritten.Load),
			counter("sync_fallbacks_total", "Async lines written by the caller because the queue was full", l.stats.SyncFallbacks.Load),
			counter("rotations_total", "Log file rotations", l.stats.Rotations.Load),
			counter("file_errors_total", "Failed log file opens, flushes and syncs", l.stats.FileErrors.Load),
			counter("uploads_skipped_total", "Completed files not handed to the uploader", l.stats.UploadsSkipped.Load),
		},
	}

	for _, c := range m.collectors {
		if err := reg.Register(c); err != nil {
			l.diag.Warn().Err(err).Str("prefix", prefix).Msg("failed to register logger metric")
		}
	}
	return m
}
