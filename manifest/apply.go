package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/GoCodeAlone/appshell"
	"github.com/GoCodeAlone/appshell/loader"
	"github.com/go-resty/resty/v2"
)

// Shell is the part of appshell.Shell the applier drives.
type Shell interface {
	RegisterApplication(name string, loader any, activity appshell.ActivityFunc, props appshell.Props) error
	UnregisterApplication(name string) error
	App(name string) (appshell.AppSnapshot, bool)
}

// Result lists what one Apply changed.
type Result struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	// Skipped are applications that should have been replaced or removed but
	// were busy; a later Apply retries them.
	Skipped []string `json:"skipped"`
}

// Changed reports whether the registry was modified.
func (r Result) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// Applier keeps a shell's registry in line with successive manifests. It only
// touches applications it registered itself.
type Applier struct {
	shell   Shell
	catalog *loader.Catalog
	client  *resty.Client
	logger  appshell.Logger

	mu      sync.Mutex
	managed map[string]string // name -> spec fingerprint
}

// NewApplier creates an applier. client is used by remote loaders and may be nil.
func NewApplier(shell Shell, catalog *loader.Catalog, client *resty.Client, logger appshell.Logger) *Applier {
	if client == nil {
		client = loader.NewClient()
	}
	return &Applier{
		shell:   shell,
		catalog: catalog,
		client:  client,
		logger:  logger,
		managed: make(map[string]string),
	}
}

// Apply registers one manifest with a fresh applier.
func Apply(ctx context.Context, shell Shell, catalog *loader.Catalog, m *Manifest) (Result, error) {
	return NewApplier(shell, catalog, nil, nil).Apply(ctx, m)
}

// Apply registers enabled applications that are new or whose spec changed,
// unregisters managed applications that are gone or disabled, and replaces
// quarantined ones so a corrected manifest gets a fresh attempt.
func (a *Applier) Apply(ctx context.Context, m *Manifest) (Result, error) {
	if err := m.Validate(); err != nil {
		return Result{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	var res Result
	var errs []error
	desired := make(map[string]AppSpec)
	for _, spec := range m.Enabled() {
		desired[spec.Name] = spec
	}

	for _, name := range slices.Sorted(maps.Keys(a.managed)) {
		if spec, ok := desired[name]; ok && !a.stale(name, spec) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		switch err := a.shell.UnregisterApplication(name); {
		case err == nil, errors.Is(err, appshell.ErrAppNotFound):
			delete(a.managed, name)
			res.Removed = append(res.Removed, name)
		case errors.Is(err, appshell.ErrAppBusy):
			res.Skipped = append(res.Skipped, name)
			delete(desired, name)
		default:
			errs = append(errs, err)
			delete(desired, name)
		}
	}

	for _, spec := range m.Enabled() {
		if _, ok := desired[spec.Name]; !ok {
			continue
		}
		if _, ok := a.managed[spec.Name]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := a.register(spec); err != nil {
			errs = append(errs, err)
			continue
		}
		res.Added = append(res.Added, spec.Name)
	}

	if a.logger != nil && (res.Changed() || len(res.Skipped) > 0) {
		a.logger.Info("Manifest applied", "added", res.Added, "removed", res.Removed, "skipped", res.Skipped)
	}
	return res, errors.Join(errs...)
}

// Managed returns the names of the applications this applier registered.
func (a *Applier) Managed() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Sorted(maps.Keys(a.managed))
}

// stale reports whether a managed application must be replaced.
func (a *Applier) stale(name string, spec AppSpec) bool {
	if a.managed[name] != fingerprint(spec) {
		return true
	}
	snap, ok := a.shell.App(name)
	return !ok || snap.Status.Quarantined()
}

func (a *Applier) register(spec AppSpec) error {
	activity, err := spec.Activity()
	if err != nil {
		return fmt.Errorf("app %q: %w", spec.Name, err)
	}
	props := appshell.Props(maps.Clone(spec.Props))

	var l appshell.Loader
	if spec.Remote != "" {
		l = loader.NewRemote(spec.Remote, a.catalog, props, a.client)
	} else {
		l = a.catalog.Local(spec.Factory, props)
	}
	if err := a.shell.RegisterApplication(spec.Name, l, activity, props); err != nil {
		return err
	}
	a.managed[spec.Name] = fingerprint(spec)
	return nil
}

func fingerprint(spec AppSpec) string {
	b, err := json.Marshal(spec)
	if err != nil {
		return fmt.Sprintf("%+v", spec)
	}
	return string(b)
}
