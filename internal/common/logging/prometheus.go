package logging

import (
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// PrometheusHook implements logrus.Hook, counting log lines by level.
type PrometheusHook struct {
	counter *prometheus.CounterVec
}

// NewPrometheusHook creates the log line counter and registers it with reg.
func NewPrometheusHook(reg prometheus.Registerer) *PrometheusHook {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowlens_log_messages_total",
		Help: "Total number of log lines logged by level",
	}, []string{"level"})
	reg.MustRegister(counter)
	return &PrometheusHook{counter: counter}
}

func (h *PrometheusHook) Levels() []log.Level {
	return []log.Level{log.DebugLevel, log.InfoLevel, log.WarnLevel, log.ErrorLevel}
}

func (h *PrometheusHook) Fire(entry *log.Entry) error {
	h.counter.WithLabelValues(entry.Level.String()).Inc()
	return nil
}
