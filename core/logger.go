package core

// Fields is a set of structured logging key/value pairs
type Fields map[string]any

// Logger is the logging interface used across the bot.
// Concrete adapters live under logger/.
type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	WithFields(fields Fields) Logger
}
