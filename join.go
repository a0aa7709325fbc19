package appshell

import (
	"errors"

	"golang.org/x/sync/errgroup"
)

// outcome is the settled result of one fan-out branch.
type outcome struct {
	app *App
	err error
}

// join runs one branch per application concurrently and collects every
// branch's outcome individually. Branches never fail the group, so one branch
// cannot cancel or mask a sibling.
type join struct {
	outcomes []outcome
	done     chan struct{}
}

// startJoin launches the branches in slice order and returns immediately.
func startJoin(apps []*App, branch func(*App) error) *join {
	j := &join{
		outcomes: make([]outcome, len(apps)),
		done:     make(chan struct{}),
	}
	var g errgroup.Group
	for i, app := range apps {
		g.Go(func() error {
			j.outcomes[i] = outcome{app: app, err: branch(app)}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(j.done)
	}()
	return j
}

// wait blocks until every branch settled.
func (j *join) wait() []outcome {
	<-j.done
	return j.outcomes
}

// err waits and joins every branch failure.
func (j *join) err() error {
	var errs []error
	for _, o := range j.wait() {
		if o.err != nil {
			errs = append(errs, o.err)
		}
	}
	return errors.Join(errs...)
}

// unrecovered waits and joins the failures that were not recovered by the
// lifecycle state machine.
func (j *join) unrecovered() error {
	var errs []error
	for _, o := range j.wait() {
		if o.err != nil && !IsTransitionError(o.err) {
			errs = append(errs, o.err)
		}
	}
	return errors.Join(errs...)
}
