package logging

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/weaveworks/promrus"
)

const logLevelEnvVar = "ATSTRESS_LOG_LEVEL"

// ConfigureCliLogging sets up the global logrus logger for command line use: text output on stdout with full
// timestamps. The level defaults to info and can be overridden through ATSTRESS_LOG_LEVEL.
func ConfigureCliLogging() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, DisableLevelTruncation: true})
	log.SetOutput(os.Stdout)
	log.SetLevel(levelFromEnv())
	if err := CountLogMessages(log.StandardLogger()); err != nil {
		log.WithError(err).Warn("log messages will not be counted")
	}
}

// CountLogMessages makes logger count its messages per level in the default Prometheus registry, which is served
// next to the run metrics.
func CountLogMessages(logger *log.Logger) error {
	hook, err := promrus.NewPrometheusHook()
	if err != nil {
		return errors.WithStack(err)
	}
	logger.AddHook(hook)
	return nil
}

func levelFromEnv() log.Level {
	value, ok := os.LookupEnv(logLevelEnvVar)
	if !ok {
		return log.InfoLevel
	}
	level, err := log.ParseLevel(strings.TrimSpace(value))
	if err != nil {
		log.Warnf("ignoring %s=%q: %s", logLevelEnvVar, value, err)
		return log.InfoLevel
	}
	return level
}
