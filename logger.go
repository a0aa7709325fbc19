package appshell

// Logger defines the interface for shell logging.
// The shell uses structured logging with key-value pairs so that
// reconciliation passes, lifecycle transitions and navigation replays
// produce consistent, parseable output.
//
// The Logger interface uses variadic arguments in key-value pairs:
//
//	logger.Info("message", "key1", "value1", "key2", "value2")
//
// The logging package provides a zap-backed implementation.
type Logger interface {
	// Info logs an informational message with optional key-value pairs.
	// Used for normal events like a pass completing or an app mounting.
	Info(msg string, args ...any)

	// Error logs an error message with optional key-value pairs.
	// Used for executor failures and rejected passes.
	Error(msg string, args ...any)

	// Warn logs a warning message with optional key-value pairs.
	// Used for isolated failures the shell recovers from, like a failed unmount phase.
	Warn(msg string, args ...any)

	// Debug logs a debug message with optional key-value pairs.
	// Used for per-pass candidate sets and queue handoffs.
	Debug(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
