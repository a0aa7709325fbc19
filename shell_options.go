package appshell

import (
	"context"
	"fmt"
)

// Option configures a Shell.
type Option func(*Shell) error

// WithLogger sets the logger used by the shell and everything it wires.
func WithLogger(logger Logger) Option {
	return func(s *Shell) error {
		if logger == nil {
			return invalidArgument("logger must not be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithErrorReporter adds a reporter that receives every lifecycle failure, in
// addition to the shell's own logging and app.failed event.
func WithErrorReporter(reporter ErrorReporter) Option {
	return func(s *Shell) error {
		if reporter == nil {
			return invalidArgument("error reporter must not be nil")
		}
		s.reporter = reporter
		return nil
	}
}

// WithMetrics sets the recorder for pass and transition measurements.
func WithMetrics(recorder MetricsRecorder) Option {
	return func(s *Shell) error {
		if recorder == nil {
			return invalidArgument("metrics recorder must not be nil")
		}
		s.metrics = recorder
		return nil
	}
}

// WithInitialLocation positions the navigator at rawURL.
func WithInitialLocation(rawURL string) Option {
	return func(s *Shell) error {
		loc, err := ParseLocation(rawURL)
		if err != nil {
			return fmt.Errorf("initial location: %w", err)
		}
		s.initial = loc
		return nil
	}
}

// WithContext sets the parent context bounding the shell's lifetime.
func WithContext(ctx context.Context) Option {
	return func(s *Shell) error {
		if ctx == nil {
			return invalidArgument("context must not be nil")
		}
		s.parent = ctx
		return nil
	}
}

// WithObserver registers an observer before the first event is emitted.
func WithObserver(observer Observer, eventTypes ...string) Option {
	return func(s *Shell) error {
		if observer == nil {
			return invalidArgument("observer must not be nil")
		}
		s.pendingObservers = append(s.pendingObservers, pendingObserver{observer: observer, eventTypes: eventTypes})
		return nil
	}
}

type pendingObserver struct {
	observer   Observer
	eventTypes []string
}
