package appshell

import (
	"context"
	"sync"
	"time"
)

// NavigationEvent is the context a navigation-originated trigger carries. It is
// replayed to navigation listeners once the pass that processed it settles.
type NavigationEvent struct {
	ID   string    `json:"id"`
	From Location  `json:"from"`
	To   Location  `json:"to"`
	At   time.Time `json:"at"`
}

// NavigationListener receives replayed navigation events. Listeners run in
// navigation order on a replay goroutine, never on the pass goroutine, so a
// listener may navigate again and wait on the returned Future.
type NavigationListener func(ctx context.Context, event NavigationEvent)

// LocationSource supplies the trigger context for activity predicates.
type LocationSource interface {
	Location() Location
}

// EventReplayer is called, in arrival order, for every navigation event after
// the pass carrying it settles.
type EventReplayer interface {
	Replay(ctx context.Context, event *NavigationEvent)
}

// Navigator owns the current location and turns location changes into
// reconciliation triggers.
type Navigator struct {
	mu        sync.RWMutex
	location  Location
	listeners []*listenerEntry
	logger    Logger
	invoke    func(*NavigationEvent) *Future
}

type listenerEntry struct {
	fn NavigationListener
}

// NewNavigator creates a navigator positioned at initial. invoke is the
// reconciliation entry point navigations are forwarded to.
func NewNavigator(initial Location, logger Logger, invoke func(*NavigationEvent) *Future) *Navigator {
	if logger == nil {
		logger = nopLogger{}
	}
	if initial.Path == "" {
		initial.Path = "/"
	}
	return &Navigator{location: initial, logger: logger, invoke: invoke}
}

// Location returns the current location.
func (n *Navigator) Location() Location {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.location
}

// Navigate moves to rawURL and triggers reconciliation with the navigation as
// event context.
func (n *Navigator) Navigate(rawURL string) (*Future, error) {
	to, err := ParseLocation(rawURL)
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	from := n.location
	n.location = to
	n.mu.Unlock()

	event := &NavigationEvent{ID: newID(), From: from, To: to, At: time.Now()}
	n.logger.Debug("Navigation", "id", event.ID, "from", from.String(), "to", to.String())
	return n.invoke(event), nil
}

// AddListener registers a listener for replayed navigation events and returns
// a function that removes it.
func (n *Navigator) AddListener(fn NavigationListener) (remove func()) {
	entry := &listenerEntry{fn: fn}
	n.mu.Lock()
	n.listeners = append(n.listeners, entry)
	n.mu.Unlock()
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, l := range n.listeners {
			if l == entry {
				n.listeners = append(n.listeners[:i], n.listeners[i+1:]...)
				return
			}
		}
	}
}

// Replay hands event to every listener in registration order.
func (n *Navigator) Replay(ctx context.Context, event *NavigationEvent) {
	n.mu.RLock()
	listeners := make([]*listenerEntry, len(n.listeners))
	copy(listeners, n.listeners)
	n.mu.RUnlock()

	for _, l := range listeners {
		n.callListener(ctx, l.fn, *event)
	}
}

func (n *Navigator) callListener(ctx context.Context, fn NavigationListener, event NavigationEvent) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Navigation listener panicked", "navigation", event.ID, "panic", r)
		}
	}()
	fn(ctx, event)
}
