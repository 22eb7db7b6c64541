package util

import (
	"fmt"

	"github.com/pion/logging"
)

// Compile-time interface checks.
var (
	_ logging.LoggerFactory = LoggerFactory{}
	_ logging.LeveledLogger = (*scopedLogger)(nil)
)

// LoggerFactory routes pion's internal logging (ICE, DTLS, SCTP, …) into the
// pterm logger. Pion is chatty, so everything below warning level is only
// printed when debug logging is enabled.
type LoggerFactory struct{}

// NewLogger implements logging.LoggerFactory.
func (LoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &scopedLogger{prefix: "[pion/" + scope + "] "}
}

type scopedLogger struct {
	prefix string
}

func (l *scopedLogger) Trace(msg string) {}

func (l *scopedLogger) Tracef(format string, args ...interface{}) {}

func (l *scopedLogger) Debug(msg string) { l.Debugf("%s", msg) }

func (l *scopedLogger) Debugf(format string, args ...interface{}) {
	if DebugEnabled() {
		LogDebug("%s%s", l.prefix, fmt.Sprintf(format, args...))
	}
}

func (l *scopedLogger) Info(msg string) { l.Infof("%s", msg) }

// Infof is demoted to debug: pion's info lines describe connection internals,
// not negotiation outcomes.
func (l *scopedLogger) Infof(format string, args ...interface{}) {
	l.Debugf(format, args...)
}

func (l *scopedLogger) Warn(msg string) { l.Warnf("%s", msg) }

func (l *scopedLogger) Warnf(format string, args ...interface{}) {
	LogWarning("%s%s", l.prefix, fmt.Sprintf(format, args...))
}

func (l *scopedLogger) Error(msg string) { l.Errorf("%s", msg) }

func (l *scopedLogger) Errorf(format string, args ...interface{}) {
	LogError("%s%s", l.prefix, fmt.Sprintf(format, args...))
}
