package appshell

import (
	"fmt"
	"slices"
	"sync"
)

// Registry is the ordered collection of registered applications. Insertion
// order is preserved by every query and decides fan-out launch order.
type Registry struct {
	mu   sync.RWMutex
	apps []*App

	onPredicateError func(app string, err error)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// OnPredicateError sets the function told about panicking activity predicates.
// Such a predicate counts as inactive for that query.
func (r *Registry) OnPredicateError(fn func(app string, err error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPredicateError = fn
}

// Register validates and appends a new application with status NOT_LOADED.
func (r *Registry) Register(name string, loader any, activity ActivityFunc, props Props) (*App, error) {
	if name == "" {
		return nil, invalidArgument("application name must be a non-empty string")
	}
	l, err := NewLoader(loader)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, invalidArgument("activity predicate for %q must be a function", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexOf(name) >= 0 {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidArgument, name, ErrAppAlreadyRegistered)
	}
	app := newApp(name, l, activity, props)
	r.apps = append(r.apps, app)
	return app, nil
}

// Unregister removes an idle application so it can be registered again.
// Mounted applications and applications mid-transition are refused. A pass
// that already selected the application never starts a transition on it.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(name)
	if i < 0 {
		return ErrAppNotFound
	}
	if err := r.apps[i].retire(); err != nil {
		return err
	}
	r.apps = slices.Delete(r.apps, i, i+1)
	return nil
}

// Get returns the application registered under name.
func (r *Registry) Get(name string) (*App, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.indexOf(name)
	if i < 0 {
		return nil, false
	}
	return r.apps[i], true
}

// Apps returns every registered application in insertion order.
func (r *Registry) Apps() []*App {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.apps)
}

// Len returns the number of registered applications.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.apps)
}

// ToLoad returns applications that are not loaded yet and active at loc.
func (r *Registry) ToLoad(loc Location) []*App {
	return r.filter(loc, func(a *App, s Status, active func(*App) bool) bool {
		return s == StatusNotLoaded && active(a)
	})
}

// ToUnmount returns mounted applications that are no longer active at loc.
func (r *Registry) ToUnmount(loc Location) []*App {
	return r.filter(loc, func(a *App, s Status, active func(*App) bool) bool {
		return s == StatusMounted && !active(a)
	})
}

// ToMount returns loaded, unmounted applications that are active at loc.
func (r *Registry) ToMount(loc Location) []*App {
	return r.filter(loc, func(a *App, s Status, active func(*App) bool) bool {
		return (s == StatusNotBootstrapped || s == StatusNotMounted) && active(a)
	})
}

// Mounted returns the currently mounted applications.
func (r *Registry) Mounted() []*App {
	return r.filter(Location{}, func(_ *App, s Status, _ func(*App) bool) bool {
		return s == StatusMounted
	})
}

// filter never hands quarantined applications to keep. Predicates run outside
// the registry lock, against a copy of the application list.
func (r *Registry) filter(loc Location, keep func(*App, Status, func(*App) bool) bool) []*App {
	r.mu.RLock()
	apps := slices.Clone(r.apps)
	report := r.onPredicateError
	r.mu.RUnlock()

	active := func(a *App) bool {
		ok, err := a.checkActive(loc)
		if err != nil && report != nil {
			report(a.name, err)
		}
		return ok
	}
	var out []*App
	for _, a := range apps {
		s := a.Status()
		if s.Quarantined() {
			continue
		}
		if keep(a, s, active) {
			out = append(out, a)
		}
	}
	return out
}

func (r *Registry) indexOf(name string) int {
	return slices.IndexFunc(r.apps, func(a *App) bool { return a.name == name })
}
