package logging

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const levelEnvVar = "FLOWLENS_LOG_LEVEL"

// ConfigureLogging sets up the standard logger for an application: text output on stdout with full timestamps.
// The level defaults to info and can be overridden through the FLOWLENS_LOG_LEVEL environment variable. Log lines are
// counted by level in the default prometheus registry.
func ConfigureLogging() {
	log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
	log.SetOutput(os.Stdout)
	level := log.InfoLevel
	if s, ok := os.LookupEnv(levelEnvVar); ok {
		parsed, err := log.ParseLevel(s)
		if err != nil {
			log.Warnf("Ignoring invalid log level %q in %s", s, levelEnvVar)
		} else {
			level = parsed
		}
	}
	log.SetLevel(level)
	log.AddHook(NewPrometheusHook(prometheus.DefaultRegisterer))
}
