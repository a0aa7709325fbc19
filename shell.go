package appshell

import (
	"context"
	"sync/atomic"
)

// Shell owns a dynamic set of applications and keeps them reconciled against
// the current location. It is safe for concurrent use.
type Shell struct {
	*subject

	parent           context.Context
	ctx              context.Context
	cancel           context.CancelFunc
	logger           Logger
	reporter         ErrorReporter
	metrics          MetricsRecorder
	initial          Location
	pendingObservers []pendingObserver

	registry   *Registry
	gate       *Gate
	navigator  *Navigator
	reconciler *Reconciler
	closed     atomic.Bool
}

// New creates a shell. Nothing is loaded until the first application is
// registered, and nothing is mounted until Start.
func New(opts ...Option) (*Shell, error) {
	s := &Shell{
		parent:  context.Background(),
		logger:  nopLogger{},
		metrics: nopMetrics{},
		initial: Location{Path: "/"},
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	s.ctx, s.cancel = context.WithCancel(s.parent)
	s.subject = newSubject(s.logger)
	for _, p := range s.pendingObservers {
		if err := s.RegisterObserver(p.observer, p.eventTypes...); err != nil {
			s.cancel()
			return nil, err
		}
	}
	s.pendingObservers = nil

	s.registry = NewRegistry()
	s.registry.OnPredicateError(func(app string, err error) {
		s.reportError(s.ctx, app, ActionActivity, err)
	})
	s.gate = &Gate{}
	s.reconciler = NewReconciler(s.ctx, ReconcilerConfig{
		Registry:  s.registry,
		Locations: s,
		Gate:      s.gate,
		Replayer:  s,
		Logger:    s.logger,
		Reporter:  ErrorReporterFunc(s.reportError),
		Metrics:   s.metrics,
		Emit:      s.emitEvent,
	})
	s.navigator = NewNavigator(s.initial, s.logger, s.reconciler.Invoke)
	return s, nil
}

// Location implements LocationSource.
func (s *Shell) Location() Location {
	return s.navigator.Location()
}

// Replay implements EventReplayer by forwarding to the navigator's listeners.
func (s *Shell) Replay(ctx context.Context, event *NavigationEvent) {
	s.navigator.Replay(ctx, event)
}

func (s *Shell) reportError(ctx context.Context, app string, action Action, err error) {
	s.logger.Error("Application lifecycle failed", "app", app, "action", action, "error", err)
	s.emitEvent(ctx, EventTypeAppFailed, map[string]any{
		"app":    app,
		"action": string(action),
		"error":  err.Error(),
	})
	if s.reporter != nil {
		s.reporter.ReportError(ctx, app, action, err)
	}
}

// RegisterApplication adds an application and triggers a reconciliation pass.
// loader is anything NewLoader accepts.
func (s *Shell) RegisterApplication(name string, loader any, activity ActivityFunc, props Props) error {
	if s.closed.Load() {
		return ErrShellClosed
	}
	app, err := s.registry.Register(name, loader, activity, props)
	if err != nil {
		return err
	}
	s.logger.Info("Application registered", "app", name, "loader", loaderKind(app.loader))
	s.emitEvent(s.ctx, EventTypeAppRegistered, map[string]any{"app": name})
	s.reconciler.Invoke(nil)
	return nil
}

// UnregisterApplication removes an idle application. This is also how a
// quarantined application is cleared so it can be registered again.
func (s *Shell) UnregisterApplication(name string) error {
	if err := s.registry.Unregister(name); err != nil {
		return err
	}
	s.logger.Info("Application unregistered", "app", name)
	s.emitEvent(s.ctx, EventTypeAppUnregistered, map[string]any{"app": name})
	return nil
}

// Start opens the started gate and triggers a pass that mounts whatever is
// active. It returns ErrAlreadyStarted on every call after the first.
func (s *Shell) Start() (*Future, error) {
	if s.closed.Load() {
		return nil, ErrShellClosed
	}
	if !s.gate.Start() {
		return nil, ErrAlreadyStarted
	}
	s.logger.Info("Shell started", "location", s.Location().String())
	s.emitEvent(s.ctx, EventTypeShellStarted, map[string]any{"location": s.Location().String()})
	return s.reconciler.Invoke(nil), nil
}

// Started reports whether Start was called.
func (s *Shell) Started() bool {
	return s.gate.Started()
}

// Navigate moves to rawURL and triggers a pass carrying the navigation.
func (s *Shell) Navigate(rawURL string) (*Future, error) {
	if s.closed.Load() {
		return nil, ErrShellClosed
	}
	return s.navigator.Navigate(rawURL)
}

// Reconcile triggers a pass without navigation context, for example after
// something a predicate depends on changed.
func (s *Shell) Reconcile() *Future {
	return s.reconciler.Invoke(nil)
}

// MountedApps returns a point-in-time snapshot of the mounted applications.
func (s *Shell) MountedApps() []AppSnapshot {
	return s.reconciler.Mounted()
}

// Apps returns snapshots of every registered application in registration order.
func (s *Shell) Apps() []AppSnapshot {
	return snapshots(s.registry.Apps())
}

// App returns the snapshot of one application.
func (s *Shell) App(name string) (AppSnapshot, bool) {
	app, ok := s.registry.Get(name)
	if !ok {
		return AppSnapshot{}, false
	}
	return app.Snapshot(), true
}

// AddNavigationListener registers fn for replayed navigation events.
func (s *Shell) AddNavigationListener(fn NavigationListener) (remove func()) {
	return s.navigator.AddListener(fn)
}

// Logger returns the shell's logger.
func (s *Shell) Logger() Logger {
	return s.logger
}

// Close stops accepting registrations and navigations, refuses transitions
// that have not started yet, and waits until the running pass and the queue
// have drained or ctx is done.
func (s *Shell) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()
	err := s.reconciler.WaitIdle(ctx)
	s.flush()
	s.logger.Info("Shell closed")
	return err
}
