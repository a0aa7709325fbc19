// Package appshell reconciles a dynamic set of independently loaded applications
// against the current location, driving each through load, bootstrap, mount and
// unmount while never running two reconciliation passes at once.
package appshell

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status is the lifecycle status of a registered application.
type Status string

const (
	StatusNotLoaded         Status = "NOT_LOADED"
	StatusLoading           Status = "LOADING"
	StatusNotBootstrapped   Status = "NOT_BOOTSTRAPPED"
	StatusBootstrapping     Status = "BOOTSTRAPPING"
	StatusNotMounted        Status = "NOT_MOUNTED"
	StatusMounting          Status = "MOUNTING"
	StatusMounted           Status = "MOUNTED"
	StatusUnmounting        Status = "UNMOUNTING"
	StatusLoadError         Status = "LOAD_ERROR"
	StatusSkipBecauseBroken Status = "SKIP_BECAUSE_BROKEN"
)

// Quarantined reports whether the status is terminal. Quarantined applications
// never take part in reconciliation again until they are re-registered.
func (s Status) Quarantined() bool {
	return s == StatusLoadError || s == StatusSkipBecauseBroken
}

// Transitional reports whether an executor is currently running for the status.
func (s Status) Transitional() bool {
	switch s {
	case StatusLoading, StatusBootstrapping, StatusMounting, StatusUnmounting:
		return true
	}
	return false
}

// Props is opaque data handed to every lifecycle executor of an application.
type Props map[string]any

// Lifecycle is the executor interface a loaded application exposes.
type Lifecycle interface {
	Bootstrap(ctx context.Context, props Props) error
	Mount(ctx context.Context, props Props) error
	Unmount(ctx context.Context, props Props) error
}

// LifecycleFuncs adapts plain functions to Lifecycle. Nil functions succeed.
type LifecycleFuncs struct {
	BootstrapFunc func(ctx context.Context, props Props) error
	MountFunc     func(ctx context.Context, props Props) error
	UnmountFunc   func(ctx context.Context, props Props) error
}

func (f LifecycleFuncs) Bootstrap(ctx context.Context, props Props) error {
	if f.BootstrapFunc == nil {
		return nil
	}
	return f.BootstrapFunc(ctx, props)
}

func (f LifecycleFuncs) Mount(ctx context.Context, props Props) error {
	if f.MountFunc == nil {
		return nil
	}
	return f.MountFunc(ctx, props)
}

func (f LifecycleFuncs) Unmount(ctx context.Context, props Props) error {
	if f.UnmountFunc == nil {
		return nil
	}
	return f.UnmountFunc(ctx, props)
}

// App is one registered application. Its status is owned by the lifecycle state
// machine; callers only ever read it.
type App struct {
	name         string
	loader       Loader
	activity     ActivityFunc
	props        Props
	registeredAt time.Time

	mu           sync.RWMutex
	status       Status
	lifecycle    Lifecycle
	bootstrapped bool
	lastErr      error
	updatedAt    time.Time
	// retired is set once the application leaves the registry. The state
	// machine refuses to start transitions on a retired application.
	retired bool
}

func newApp(name string, loader Loader, activity ActivityFunc, props Props) *App {
	if props == nil {
		props = Props{}
	}
	now := time.Now()
	return &App{
		name:         name,
		loader:       loader,
		activity:     activity,
		props:        props,
		registeredAt: now,
		status:       StatusNotLoaded,
		updatedAt:    now,
	}
}

// Name returns the unique application name.
func (a *App) Name() string { return a.name }

// Props returns the props passed to the application's executors.
func (a *App) Props() Props { return a.props }

// Status returns the current lifecycle status.
func (a *App) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// ActiveAt evaluates the activity predicate against loc. A panicking
// predicate counts as inactive.
func (a *App) ActiveAt(loc Location) bool {
	active, _ := a.checkActive(loc)
	return active
}

// checkActive evaluates the predicate and turns a panic into ErrPredicatePanic.
func (a *App) checkActive(loc Location) (active bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			active = false
			err = fmt.Errorf("%w: %q: %v", ErrPredicatePanic, a.name, r)
		}
	}()
	return a.activity(loc), nil
}

// retire marks an idle application as removed. Mounted applications and
// applications mid-transition are refused with ErrAppBusy. The check and the
// mark happen under the application lock, so a transition either starts first
// and makes the application busy, or sees it retired and never starts.
func (a *App) retire() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status == StatusMounted || a.status.Transitional() {
		return ErrAppBusy
	}
	a.retired = true
	return nil
}

func (a *App) loadedLifecycle() Lifecycle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lifecycle
}

// AppSnapshot is a point-in-time copy of an application's observable state.
type AppSnapshot struct {
	Name         string    `json:"name"`
	Status       Status    `json:"status"`
	Loaded       bool      `json:"loaded"`
	Bootstrapped bool      `json:"bootstrapped"`
	LastError    string    `json:"lastError,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Snapshot copies the application's state.
func (a *App) Snapshot() AppSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := AppSnapshot{
		Name:         a.name,
		Status:       a.status,
		Loaded:       a.lifecycle != nil,
		Bootstrapped: a.bootstrapped,
		RegisteredAt: a.registeredAt,
		UpdatedAt:    a.updatedAt,
	}
	if a.lastErr != nil {
		s.LastError = a.lastErr.Error()
	}
	return s
}

// Names returns the names of the given snapshots in order.
func Names(apps []AppSnapshot) []string {
	names := make([]string, len(apps))
	for i, a := range apps {
		names[i] = a.Name
	}
	return names
}

func snapshots(apps []*App) []AppSnapshot {
	out := make([]AppSnapshot, len(apps))
	for i, a := range apps {
		out[i] = a.Snapshot()
	}
	return out
}
