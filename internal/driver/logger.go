package driver

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// cronLogger adapts slog to cron.Logger. cron's own info messages
// (schedule, wake, run) are chatty, so they go to debug.
type cronLogger struct {
	logger *slog.Logger
}

// NewCronLogger returns a cron.Logger writing to logger.
func NewCronLogger(logger *slog.Logger) cron.Logger {
	return cronLogger{logger: logger.With("component", "cron")}
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
