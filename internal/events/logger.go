package events

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	logger = newLogger()

	verbosityMu sync.RWMutex
	verbosity   = 2
)

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "ts",
			logrus.FieldKeyMsg:  "msg",
		},
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetOutput redirects the event log.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// SetLevel sets the minimum severity written to the event log.
func SetLevel(level string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLevel(lvl)
	return nil
}

// SetVerbosity sets the threshold above which events stay out of the log.
// They still reach the history buffer and subscribers.
func SetVerbosity(v int) {
	verbosityMu.Lock()
	verbosity = v
	verbosityMu.Unlock()
}

// Verbosity returns the current log verbosity threshold.
func Verbosity() int {
	verbosityMu.RLock()
	defer verbosityMu.RUnlock()
	return verbosity
}

func parseLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel, nil
	case "", "info":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}

func write(e Event) {
	if e.Verbosity > Verbosity() {
		return
	}
	lvl, err := parseLevel(e.Level)
	if err != nil {
		lvl = logrus.InfoLevel
	}

	entry := logger.WithField("event", e.Name)
	if e.Source != "" {
		entry = entry.WithField("source", e.Source)
	}
	if len(e.Fields) > 0 {
		entry = entry.WithField("fields", e.Fields)
	}
	if ts, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil {
		entry = entry.WithTime(ts)
	}
	entry.Log(lvl, e.Message)
}
