// Package appshell provides Observer pattern interfaces for event-driven communication.
// These interfaces use CloudEvents specification for standardized event format
// and better interoperability with external systems.
package appshell

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer defines the interface for objects that want to be notified of events.
// Observers register with Subjects to receive notifications when events occur.
// Events use the CloudEvents specification for standardization.
type Observer interface {
	// OnEvent is called when an event occurs that the observer is interested in.
	// Observers should handle events quickly to avoid blocking other observers.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer.
	ObserverID() string
}

// Subject defines the interface for objects that can be observed.
type Subject interface {
	// RegisterObserver adds an observer to receive notifications.
	// If eventTypes is empty, the observer receives all events.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. It is idempotent.
	UnregisterObserver(observer Observer) error

	// NotifyObservers sends an event to all registered observers.
	NotifyObservers(ctx context.Context, event cloudevents.Event) error

	// GetObservers returns information about currently registered observers.
	GetObservers() []ObserverInfo
}

// ObserverInfo provides information about a registered observer.
type ObserverInfo struct {
	// ID is the unique identifier of the observer
	ID string `json:"id"`

	// EventTypes are the event types this observer is subscribed to.
	// Empty slice means all events.
	EventTypes []string `json:"eventTypes"`

	// RegisteredAt indicates when the observer was registered
	RegisteredAt time.Time `json:"registeredAt"`
}

// EventType constants for shell events, in reverse domain notation.
const (
	// Application events
	EventTypeAppRegistered   = "com.appshell.app.registered"
	EventTypeAppUnregistered = "com.appshell.app.unregistered"
	EventTypeAppLoaded       = "com.appshell.app.loaded"
	EventTypeAppBootstrapped = "com.appshell.app.bootstrapped"
	EventTypeAppMounted      = "com.appshell.app.mounted"
	EventTypeAppUnmounted    = "com.appshell.app.unmounted"
	EventTypeAppFailed       = "com.appshell.app.failed"

	// Reconciliation events
	EventTypePassStarted   = "com.appshell.pass.started"
	EventTypePassCompleted = "com.appshell.pass.completed"
	EventTypePassFailed    = "com.appshell.pass.failed"

	// Shell events
	EventTypeShellStarted       = "com.appshell.shell.started"
	EventTypeNavigationReplayed = "com.appshell.navigation.replayed"
)

// FunctionalObserver provides a simple way to create observers using functions.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates a new observer that uses the provided function
// to handle events.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{
		id:      id,
		handler: handler,
	}
}

// OnEvent implements the Observer interface by calling the handler function.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID implements the Observer interface by returning the observer ID.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}
