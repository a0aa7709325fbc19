package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/GoCodeAlone/appshell"
	"github.com/GoCodeAlone/appshell/loader"
)

// ErrDemoMountFailed is what the "broken" demo application fails with.
var ErrDemoMountFailed = errors.New("demo application refuses to mount")

// DemoCatalog returns the built-in factories:
//
//	log     logs every lifecycle call with its props
//	broken  bootstraps, then fails to mount
func DemoCatalog(logger appshell.Logger) *loader.Catalog {
	return loader.NewCatalog(map[string]loader.Factory{
		"log": func(props appshell.Props) (appshell.Lifecycle, error) {
			return logLifecycle(logger, props), nil
		},
		"broken": func(props appshell.Props) (appshell.Lifecycle, error) {
			lc := logLifecycle(logger, props)
			lc.MountFunc = func(context.Context, appshell.Props) error {
				return fmt.Errorf("%w: %v", ErrDemoMountFailed, props["reason"])
			}
			return lc, nil
		},
	})
}

func logLifecycle(logger appshell.Logger, built appshell.Props) appshell.LifecycleFuncs {
	call := func(action string) func(context.Context, appshell.Props) error {
		return func(_ context.Context, props appshell.Props) error {
			logger.Info("Demo application "+action, "props", props, "built", built)
			return nil
		}
	}
	return appshell.LifecycleFuncs{
		BootstrapFunc: call("bootstrap"),
		MountFunc:     call("mount"),
		UnmountFunc:   call("unmount"),
	}
}
