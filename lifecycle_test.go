package appshell

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTestExecutor = errors.New("executor failed")

type recordedFailure struct {
	app    string
	action Action
	err    error
}

func newTestMachine(t *testing.T) (*machine, *recordingMetrics, *[]recordedFailure) {
	t.Helper()
	metrics := newRecordingMetrics()
	var failures []recordedFailure
	m := &machine{
		logger:  nopLogger{},
		metrics: metrics,
		reporter: ErrorReporterFunc(func(_ context.Context, app string, action Action, err error) {
			failures = append(failures, recordedFailure{app: app, action: action, err: err})
		}),
		emit: func(context.Context, string, map[string]any) {},
	}
	return m, metrics, &failures
}

func newMachineApp(t *testing.T, name string, loader any) *App {
	t.Helper()
	l, err := NewLoader(loader)
	require.NoError(t, err)
	return newApp(name, l, Always(), nil)
}

func TestMachineLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("should_load_into_not_bootstrapped", func(t *testing.T) {
		m, metrics, failures := newTestMachine(t)
		log := &callLog{}
		app := newMachineApp(t, "a", loaderFor(newTestLifecycle("a", log)))

		require.NoError(t, m.load(ctx, app))
		assert.Equal(t, StatusNotBootstrapped, app.Status())
		assert.True(t, app.Snapshot().Loaded)
		assert.Equal(t, 1, metrics.transitionCount("load/success"))
		assert.Empty(t, *failures)
	})

	t.Run("should_quarantine_on_loader_error", func(t *testing.T) {
		m, metrics, failures := newTestMachine(t)
		app := newMachineApp(t, "a", func() (Lifecycle, error) { return nil, errTestExecutor })

		err := m.load(ctx, app)
		require.Error(t, err)
		assert.True(t, IsTransitionError(err))
		assert.ErrorIs(t, err, errTestExecutor)
		assert.Equal(t, StatusLoadError, app.Status())
		assert.Equal(t, errTestExecutor.Error(), app.Snapshot().LastError)
		assert.Equal(t, 1, metrics.transitionCount("load/failure"))
		require.Len(t, *failures, 1)
		assert.Equal(t, recordedFailure{app: "a", action: ActionLoad, err: errTestExecutor}, (*failures)[0])
	})

	t.Run("should_quarantine_on_nil_lifecycle", func(t *testing.T) {
		m, _, _ := newTestMachine(t)
		app := newMachineApp(t, "a", func() (Lifecycle, error) { return nil, nil })

		err := m.load(ctx, app)
		assert.ErrorIs(t, err, ErrNilLifecycle)
		assert.Equal(t, StatusLoadError, app.Status())
	})

	t.Run("should_not_reload_a_loaded_app", func(t *testing.T) {
		m, metrics, _ := newTestMachine(t)
		log := &callLog{}
		app := newMachineApp(t, "a", loaderFor(newTestLifecycle("a", log)))

		require.NoError(t, m.load(ctx, app))
		require.NoError(t, m.load(ctx, app))
		assert.Equal(t, 1, log.count("a:load"))
		assert.Equal(t, 1, metrics.totalTransitions())
	})
}

func TestMachineTransitions(t *testing.T) {
	ctx := context.Background()

	loaded := func(t *testing.T, m *machine, lc *testLifecycle) *App {
		t.Helper()
		app := newMachineApp(t, lc.name, loaderFor(lc))
		require.NoError(t, m.load(ctx, app))
		return app
	}

	t.Run("should_walk_bootstrap_mount_unmount", func(t *testing.T) {
		m, _, _ := newTestMachine(t)
		log := &callLog{}
		app := loaded(t, m, newTestLifecycle("a", log))

		require.NoError(t, m.bootstrap(ctx, app))
		assert.Equal(t, StatusNotMounted, app.Status())
		require.NoError(t, m.mount(ctx, app))
		assert.Equal(t, StatusMounted, app.Status())
		require.NoError(t, m.unmount(ctx, app))
		assert.Equal(t, StatusNotMounted, app.Status())
		require.NoError(t, m.mount(ctx, app))
		assert.Equal(t, StatusMounted, app.Status())

		assert.Equal(t, []string{"a:load", "a:bootstrap", "a:mount", "a:unmount", "a:mount"}, log.snapshot())
	})

	t.Run("should_bootstrap_once", func(t *testing.T) {
		m, _, _ := newTestMachine(t)
		log := &callLog{}
		app := loaded(t, m, newTestLifecycle("a", log))

		require.NoError(t, m.bootstrap(ctx, app))
		require.NoError(t, m.mount(ctx, app))
		require.NoError(t, m.unmount(ctx, app))
		require.NoError(t, m.bootstrap(ctx, app))
		assert.Equal(t, 1, log.count("a:bootstrap"))
		assert.True(t, app.Snapshot().Bootstrapped)
	})

	t.Run("should_treat_mount_of_mounted_app_as_noop", func(t *testing.T) {
		m, metrics, _ := newTestMachine(t)
		log := &callLog{}
		app := loaded(t, m, newTestLifecycle("a", log))
		require.NoError(t, m.bootstrap(ctx, app))
		require.NoError(t, m.mount(ctx, app))
		before := metrics.totalTransitions()

		require.NoError(t, m.mount(ctx, app))
		assert.Equal(t, 1, log.count("a:mount"))
		assert.Equal(t, before, metrics.totalTransitions())
	})

	t.Run("should_refuse_illegal_transition", func(t *testing.T) {
		m, _, _ := newTestMachine(t)
		log := &callLog{}
		app := loaded(t, m, newTestLifecycle("a", log))

		err := m.mount(ctx, app)
		assert.ErrorIs(t, err, ErrIllegalTransition)
		assert.False(t, IsTransitionError(err))
		assert.Equal(t, StatusNotBootstrapped, app.Status())

		err = m.unmount(ctx, app)
		assert.ErrorIs(t, err, ErrIllegalTransition)
	})

	t.Run("should_quarantine_failed_executors", func(t *testing.T) {
		tests := []struct {
			name   string
			setup  func(*testLifecycle)
			run    func(*testing.T, *machine, *App) error
			action Action
		}{
			{
				name:   "bootstrap",
				setup:  func(lc *testLifecycle) { lc.bootstrapErr = errTestExecutor },
				run:    func(_ *testing.T, m *machine, app *App) error { return m.bootstrap(ctx, app) },
				action: ActionBootstrap,
			},
			{
				name:  "mount",
				setup: func(lc *testLifecycle) { lc.mountErr = errTestExecutor },
				run: func(t *testing.T, m *machine, app *App) error {
					require.NoError(t, m.bootstrap(ctx, app))
					return m.mount(ctx, app)
				},
				action: ActionMount,
			},
			{
				name:  "unmount",
				setup: func(lc *testLifecycle) { lc.unmountErr = errTestExecutor },
				run: func(t *testing.T, m *machine, app *App) error {
					require.NoError(t, m.bootstrap(ctx, app))
					require.NoError(t, m.mount(ctx, app))
					return m.unmount(ctx, app)
				},
				action: ActionUnmount,
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				m, _, failures := newTestMachine(t)
				lc := newTestLifecycle("a", &callLog{})
				tt.setup(lc)
				app := loaded(t, m, lc)

				err := tt.run(t, m, app)
				var te *TransitionError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, tt.action, te.Action)
				assert.Equal(t, StatusSkipBecauseBroken, te.Status)
				assert.Equal(t, StatusSkipBecauseBroken, app.Status())
				require.Len(t, *failures, 1)
				assert.Equal(t, tt.action, (*failures)[0].action)

				// Quarantine is terminal.
				assert.True(t, IsTransitionError(m.mount(ctx, app)))
				assert.Equal(t, StatusSkipBecauseBroken, app.Status())
			})
		}
	})

	t.Run("should_recover_executor_panic", func(t *testing.T) {
		m, _, _ := newTestMachine(t)
		lc := newTestLifecycle("a", &callLog{})
		lc.mountPanic = "boom"
		app := loaded(t, m, lc)
		require.NoError(t, m.bootstrap(ctx, app))

		err := m.mount(ctx, app)
		assert.ErrorIs(t, err, ErrExecutorPanic)
		assert.True(t, IsTransitionError(err))
		assert.Equal(t, StatusSkipBecauseBroken, app.Status())
	})

	t.Run("should_refuse_to_start_after_cancellation", func(t *testing.T) {
		m, metrics, _ := newTestMachine(t)
		lc := newTestLifecycle("a", &callLog{})
		app := loaded(t, m, lc)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		err := m.bootstrap(cancelled, app)
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, IsTransitionError(err))
		assert.Equal(t, StatusNotBootstrapped, app.Status())
		assert.Equal(t, 1, metrics.totalTransitions())
	})

	t.Run("should_expose_pending_status_while_running", func(t *testing.T) {
		m, _, _ := newTestMachine(t)
		lc := newTestLifecycle("a", &callLog{})
		lc.mountGate = make(chan struct{})
		app := loaded(t, m, lc)
		require.NoError(t, m.bootstrap(ctx, app))

		done := make(chan error, 1)
		go func() { done <- m.mount(ctx, app) }()

		assert.Eventually(t, func() bool { return app.Status() == StatusMounting }, testTimeout, 5*time.Millisecond)
		close(lc.mountGate)
		require.NoError(t, <-done)
		assert.Equal(t, StatusMounted, app.Status())
	})
}

func TestMachineRefusesUnregisteredApps(t *testing.T) {
	ctx := context.Background()
	m, metrics, failures := newTestMachine(t)
	log := &callLog{}
	r := NewRegistry()
	app, err := r.Register("a", loaderFor(newTestLifecycle("a", log)), Always(), nil)
	require.NoError(t, err)
	require.NoError(t, r.Unregister("a"))

	require.NoError(t, m.load(ctx, app))
	require.NoError(t, m.bootstrap(ctx, app))
	require.NoError(t, m.mount(ctx, app))

	assert.Empty(t, log.snapshot())
	assert.Equal(t, StatusNotLoaded, app.Status())
	assert.Zero(t, metrics.totalTransitions())
	assert.Empty(t, *failures)
}
