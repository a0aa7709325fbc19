package appshell

import (
	"context"
	"sync"
)

// Future is the eventual outcome of a reconciliation trigger. It settles once,
// with the mounted set at the end of the pass that processed the trigger.
type Future struct {
	once sync.Once
	done chan struct{}
	apps []AppSnapshot
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Done is closed when the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx is done.
func (f *Future) Wait(ctx context.Context) ([]AppSnapshot, error) {
	select {
	case <-f.done:
		return f.apps, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the settled value without blocking. ok is false while the
// future is still pending.
func (f *Future) Result() (apps []AppSnapshot, err error, ok bool) {
	select {
	case <-f.done:
		return f.apps, f.err, true
	default:
		return nil, nil, false
	}
}

// settle records the outcome. Later calls are ignored.
func (f *Future) settle(apps []AppSnapshot, err error) {
	f.once.Do(func() {
		f.apps = apps
		f.err = err
		close(f.done)
	})
}

// triggerRequest is one call to Invoke waiting for the pass that folds it in.
type triggerRequest struct {
	event  *NavigationEvent
	future *Future
}

func newTriggerRequest(event *NavigationEvent) *triggerRequest {
	return &triggerRequest{event: event, future: newFuture()}
}

// batch is the set of trigger requests settled together by one pass, in
// arrival order.
type batch []*triggerRequest

func (b batch) resolve(apps []AppSnapshot) {
	for _, req := range b {
		req.future.settle(apps, nil)
	}
}

func (b batch) reject(err error) {
	for _, req := range b {
		req.future.settle(nil, err)
	}
}

// events returns the navigation events carried by the batch, in arrival order.
func (b batch) events() []*NavigationEvent {
	var out []*NavigationEvent
	for _, req := range b {
		if req.event != nil {
			out = append(out, req.event)
		}
	}
	return out
}
