// Package loader provides application loaders beyond the in-process function
// and static loaders of the core package.
package loader

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/GoCodeAlone/appshell"
)

// Static errors for loaders
var (
	ErrUnknownFactory = errors.New("unknown application factory")
	ErrFetchFailed    = errors.New("failed to fetch application descriptor")
	ErrEmptyFactory   = errors.New("descriptor names no factory")
)

// Factory builds a lifecycle from props.
type Factory func(props appshell.Props) (appshell.Lifecycle, error)

// Catalog maps factory names to factories. It is safe for concurrent use.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog creates a catalog holding factories.
func NewCatalog(factories map[string]Factory) *Catalog {
	c := &Catalog{factories: make(map[string]Factory, len(factories))}
	maps.Copy(c.factories, factories)
	return c
}

// Register adds or replaces a factory.
func (c *Catalog) Register(name string, factory Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = factory
}

// Lookup returns the factory registered under name.
func (c *Catalog) Lookup(name string) (Factory, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFactory, name)
	}
	return f, nil
}

// Names returns the registered factory names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.factories))
}

// Local returns a loader that builds the lifecycle from the named factory
// when the application is loaded. An unknown name fails the load, not the
// registration.
func (c *Catalog) Local(name string, props appshell.Props) appshell.Loader {
	return appshell.FunctionLoader(func(context.Context) (appshell.Lifecycle, error) {
		factory, err := c.Lookup(name)
		if err != nil {
			return nil, err
		}
		return factory(props)
	})
}
