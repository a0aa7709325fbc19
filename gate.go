package appshell

import "sync/atomic"

// StartGate tells the reconciler whether the shell has started. Before start
// only loading happens; after start applications are mounted and unmounted.
type StartGate interface {
	Started() bool
}

// Gate is a StartGate toggled exactly once.
type Gate struct {
	started atomic.Bool
}

// Start opens the gate. It returns false when the gate was already open.
func (g *Gate) Start() bool {
	return g.started.CompareAndSwap(false, true)
}

// Started reports whether Start was called.
func (g *Gate) Started() bool {
	return g.started.Load()
}
