package appshell

import (
	"errors"
	"fmt"
)

// Shell errors
var (
	// Registration errors
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrAppAlreadyRegistered = errors.New("application already registered")
	ErrAppNotFound          = errors.New("application not found")
	ErrAppBusy              = errors.New("application is mounted or mid-transition")

	// Lifecycle errors
	ErrNilLifecycle       = errors.New("loader resolved a nil lifecycle")
	ErrExecutorPanic      = errors.New("lifecycle executor panicked")
	ErrIllegalTransition  = errors.New("illegal status transition")
	ErrLifecycleNotLoaded = errors.New("application lifecycle not loaded")
	ErrPredicatePanic     = errors.New("activity predicate panicked")

	// Shell errors
	ErrAlreadyStarted = errors.New("shell already started")
	ErrShellClosed    = errors.New("shell is closed")
)

// Action names a lifecycle transition.
type Action string

const (
	ActionLoad      Action = "load"
	ActionBootstrap Action = "bootstrap"
	ActionMount     Action = "mount"
	ActionUnmount   Action = "unmount"
	// ActionActivity reports a failed activity predicate. It never quarantines.
	ActionActivity Action = "activity"
)

// TransitionError is returned when a lifecycle executor fails. The application
// has already been moved to its quarantine status when this error is observed.
type TransitionError struct {
	App    string
	Action Action
	Status Status
	Err    error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("application %q failed to %s (now %s): %v", e.App, e.Action, e.Status, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// IsTransitionError reports whether err is (or wraps) a recovered executor failure.
func IsTransitionError(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
