// Package logging configures logrus and holds the small helpers used at the
// edges of the service to report failures once.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing to stderr at the given level.
// An unknown level falls back to info.
func New(level string, json bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if json {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// Configure applies the same settings to the logrus standard logger, which
// the store packages log through.
func Configure(level string, json bool) *logrus.Logger {
	std := logrus.StandardLogger()
	l := New(level, json)
	std.SetLevel(l.GetLevel())
	std.SetFormatter(l.Formatter)
	return l
}

func LogError(logger *logrus.Logger, msg string, err error) {
	logger.Errorf("%s: %v", msg, err)
}

func LogFatal(logger *logrus.Logger, msg string, err error) {
	logger.Fatalf("%s: %v", msg, err)
}

func LogWarn(logger *logrus.Logger, msg string) {
	logger.Warn(msg)
}

func LogInfo(logger *logrus.Logger, msg string) {
	logger.Info(msg)
}
