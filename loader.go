package appshell

import (
	"context"
	"fmt"
)

// Loader resolves an application's lifecycle executors.
type Loader interface {
	Load(ctx context.Context) (Lifecycle, error)
}

// FunctionLoader resolves the lifecycle by calling a function.
type FunctionLoader func(ctx context.Context) (Lifecycle, error)

// Load calls the function.
func (f FunctionLoader) Load(ctx context.Context) (Lifecycle, error) {
	return f(ctx)
}

// StaticLoader resolves to a lifecycle value that already exists.
type StaticLoader struct {
	Lifecycle Lifecycle
}

// Load returns the wrapped lifecycle.
func (s StaticLoader) Load(context.Context) (Lifecycle, error) {
	return s.Lifecycle, nil
}

// NewLoader normalizes the accepted loader shapes into a Loader. Registration is
// the only place loader values are inspected; the rest of the shell only sees
// the Loader interface.
func NewLoader(v any) (Loader, error) {
	switch l := v.(type) {
	case nil:
		return nil, invalidArgument("loader must not be nil")
	case FunctionLoader:
		if l == nil {
			return nil, invalidArgument("loader must not be nil")
		}
		return l, nil
	case Loader:
		return l, nil
	case func(context.Context) (Lifecycle, error):
		if l == nil {
			return nil, invalidArgument("loader must not be nil")
		}
		return FunctionLoader(l), nil
	case func() (Lifecycle, error):
		if l == nil {
			return nil, invalidArgument("loader must not be nil")
		}
		return FunctionLoader(func(context.Context) (Lifecycle, error) { return l() }), nil
	case func(context.Context) Lifecycle:
		if l == nil {
			return nil, invalidArgument("loader must not be nil")
		}
		return FunctionLoader(func(ctx context.Context) (Lifecycle, error) { return l(ctx), nil }), nil
	case Lifecycle:
		return StaticLoader{Lifecycle: l}, nil
	default:
		return nil, invalidArgument("unsupported loader type %T", v)
	}
}

// loaderKind names the normalized variant for logs and events.
func loaderKind(l Loader) string {
	switch l.(type) {
	case FunctionLoader:
		return "function"
	case StaticLoader:
		return "static"
	default:
		return fmt.Sprintf("%T", l)
	}
}
