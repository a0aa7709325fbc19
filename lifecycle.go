package appshell

import (
	"context"
	"fmt"
	"time"
)

// ErrorReporter receives every executor failure before the application is
// quarantined, and every panicking activity predicate (ActionActivity).
type ErrorReporter interface {
	ReportError(ctx context.Context, app string, action Action, err error)
}

// ErrorReporterFunc adapts a function to ErrorReporter.
type ErrorReporterFunc func(ctx context.Context, app string, action Action, err error)

// ReportError calls f.
func (f ErrorReporterFunc) ReportError(ctx context.Context, app string, action Action, err error) {
	f(ctx, app, action, err)
}

// transition is one row of the lifecycle table.
type transition struct {
	action  Action
	from    Status
	pending Status
	success Status
	failure Status
	event   string
	// done reports, with the app lock held, that the action already happened.
	done func(a *App) bool
}

var (
	loadTransition = transition{
		action:  ActionLoad,
		from:    StatusNotLoaded,
		pending: StatusLoading,
		success: StatusNotBootstrapped,
		failure: StatusLoadError,
		event:   EventTypeAppLoaded,
		done:    func(a *App) bool { return a.lifecycle != nil && !a.status.Quarantined() },
	}
	bootstrapTransition = transition{
		action:  ActionBootstrap,
		from:    StatusNotBootstrapped,
		pending: StatusBootstrapping,
		success: StatusNotMounted,
		failure: StatusSkipBecauseBroken,
		event:   EventTypeAppBootstrapped,
		done:    func(a *App) bool { return a.bootstrapped && !a.status.Quarantined() },
	}
	mountTransition = transition{
		action:  ActionMount,
		from:    StatusNotMounted,
		pending: StatusMounting,
		success: StatusMounted,
		failure: StatusSkipBecauseBroken,
		event:   EventTypeAppMounted,
		done:    func(a *App) bool { return a.status == StatusMounted },
	}
	unmountTransition = transition{
		action:  ActionUnmount,
		from:    StatusMounted,
		pending: StatusUnmounting,
		success: StatusNotMounted,
		failure: StatusSkipBecauseBroken,
		event:   EventTypeAppUnmounted,
		done:    func(a *App) bool { return a.status == StatusNotMounted },
	}
)

// machine is the lifecycle state machine. It is the only writer of App status.
type machine struct {
	logger   Logger
	reporter ErrorReporter
	metrics  MetricsRecorder
	emit     func(ctx context.Context, eventType string, data map[string]any)
}

func (m *machine) load(ctx context.Context, app *App) error {
	return m.run(ctx, app, loadTransition, func(ctx context.Context) error {
		lc, err := app.loader.Load(ctx)
		if err != nil {
			return err
		}
		if lc == nil {
			return ErrNilLifecycle
		}
		app.mu.Lock()
		app.lifecycle = lc
		app.mu.Unlock()
		return nil
	})
}

func (m *machine) bootstrap(ctx context.Context, app *App) error {
	return m.run(ctx, app, bootstrapTransition, func(ctx context.Context) error {
		lc := app.loadedLifecycle()
		if lc == nil {
			return ErrLifecycleNotLoaded
		}
		return lc.Bootstrap(ctx, app.props)
	})
}

// mount is a no-op for an application that is already mounted.
func (m *machine) mount(ctx context.Context, app *App) error {
	return m.run(ctx, app, mountTransition, func(ctx context.Context) error {
		lc := app.loadedLifecycle()
		if lc == nil {
			return ErrLifecycleNotLoaded
		}
		return lc.Mount(ctx, app.props)
	})
}

func (m *machine) unmount(ctx context.Context, app *App) error {
	return m.run(ctx, app, unmountTransition, func(ctx context.Context) error {
		lc := app.loadedLifecycle()
		if lc == nil {
			return ErrLifecycleNotLoaded
		}
		return lc.Unmount(ctx, app.props)
	})
}

// run applies one transition. A transition that has not started is refused once
// ctx is done; a started one always runs to completion and always releases the
// pending status, whatever the executor does.
func (m *machine) run(ctx context.Context, app *App, t transition, exec func(context.Context) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	app.mu.Lock()
	current := app.status
	switch {
	case app.retired:
		app.mu.Unlock()
		m.logger.Debug("Skipping unregistered application", "app", app.name, "action", t.action)
		return nil
	case t.done(app):
		app.mu.Unlock()
		return nil
	case current.Quarantined():
		lastErr := app.lastErr
		app.mu.Unlock()
		return &TransitionError{App: app.name, Action: t.action, Status: current, Err: lastErr}
	case current != t.from:
		app.mu.Unlock()
		return fmt.Errorf("%w: cannot %s %q from %s", ErrIllegalTransition, t.action, app.name, current)
	}
	app.status = t.pending
	app.updatedAt = time.Now()
	app.mu.Unlock()

	m.logger.Debug("Lifecycle transition started", "app", app.name, "action", t.action, "from", current)
	start := time.Now()

	var execErr error
	defer func() {
		final := t.success
		if execErr != nil {
			final = t.failure
		}
		app.mu.Lock()
		app.status = final
		app.updatedAt = time.Now()
		if execErr != nil {
			app.lastErr = execErr
		} else if t.action == ActionBootstrap {
			app.bootstrapped = true
		}
		app.mu.Unlock()

		if execErr != nil {
			m.metrics.ObserveTransition(string(t.action), "failure")
			m.reporter.ReportError(ctx, app.name, t.action, execErr)
			err = &TransitionError{App: app.name, Action: t.action, Status: final, Err: execErr}
			return
		}
		m.metrics.ObserveTransition(string(t.action), "success")
		m.logger.Debug("Lifecycle transition completed", "app", app.name, "action", t.action, "status", final, "duration", time.Since(start))
		m.emit(ctx, t.event, map[string]any{
			"app":    app.name,
			"status": string(final),
		})
	}()

	execErr = callExecutor(ctx, exec)
	return nil
}

// callExecutor turns an executor panic into an error.
func callExecutor(ctx context.Context, exec func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrExecutorPanic, r)
		}
	}()
	return exec(ctx)
}
