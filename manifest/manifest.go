// Package manifest describes the application set of a shell declaratively and
// reconciles the shell's registry with it.
package manifest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/GoCodeAlone/appshell"
	"github.com/GoCodeAlone/appshell/feeders"
)

// EnvPrefix prefixes per-application overrides: APPSHELL_<APP>_DISABLED,
// APPSHELL_<APP>_REMOTE and APPSHELL_<APP>_<PROP>.
const EnvPrefix = "APPSHELL"

// Static errors for manifest validation
var (
	ErrMissingName     = errors.New("application name is required")
	ErrDuplicateName   = errors.New("duplicate application name")
	ErrNoSource        = errors.New("application needs a factory or a remote")
	ErrAmbiguousSource = errors.New("application has both a factory and a remote")
	ErrInvalidRoute    = errors.New("invalid route pattern")
)

// Manifest is the declared application set.
type Manifest struct {
	Apps []AppSpec `yaml:"apps" toml:"apps" json:"apps"`
}

// AppSpec declares one application. An application with neither routes nor
// path prefixes is active everywhere.
type AppSpec struct {
	Name         string         `yaml:"name" toml:"name" json:"name"`
	Routes       []string       `yaml:"routes" toml:"routes" json:"routes,omitempty"`
	PathPrefixes []string       `yaml:"pathPrefixes" toml:"pathPrefixes" json:"pathPrefixes,omitempty"`
	Factory      string         `yaml:"factory" toml:"factory" json:"factory,omitempty"`
	Remote       string         `yaml:"remote" toml:"remote" json:"remote,omitempty" env:"REMOTE"`
	Props        map[string]any `yaml:"props" toml:"props" json:"props,omitempty"`
	Disabled     bool           `yaml:"disabled" toml:"disabled" json:"disabled,omitempty" env:"DISABLED"`
}

// Load reads the manifest at path, choosing the format by extension, and
// applies environment overrides.
func Load(path string) (*Manifest, error) {
	feeder, err := feeders.ForFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := feeder.Feed(&m); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	if err := m.applyEnv(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return &m, nil
}

func (m *Manifest) applyEnv() error {
	for i := range m.Apps {
		spec := &m.Apps[i]
		if spec.Name == "" {
			continue
		}
		env := feeders.NewAffixedEnvFeeder(feeders.EnvName(EnvPrefix, spec.Name), "")
		if err := env.Feed(spec); err != nil {
			return fmt.Errorf("app %q: %w", spec.Name, err)
		}
		if err := env.FeedProps(spec.Props); err != nil {
			return fmt.Errorf("app %q: %w", spec.Name, err)
		}
	}
	return nil
}

// Validate reports every problem in the manifest at once.
func (m *Manifest) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(m.Apps))
	for i, spec := range m.Apps {
		if spec.Name == "" {
			errs = append(errs, fmt.Errorf("apps[%d]: %w", i, ErrMissingName))
			continue
		}
		if seen[spec.Name] {
			errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicateName, spec.Name))
		}
		seen[spec.Name] = true

		switch {
		case spec.Factory == "" && spec.Remote == "":
			errs = append(errs, fmt.Errorf("app %q: %w", spec.Name, ErrNoSource))
		case spec.Factory != "" && spec.Remote != "":
			errs = append(errs, fmt.Errorf("app %q: %w", spec.Name, ErrAmbiguousSource))
		}
		if _, err := spec.Activity(); err != nil {
			errs = append(errs, fmt.Errorf("app %q: %w", spec.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Enabled returns the specs that are not disabled, in declaration order.
func (m *Manifest) Enabled() []AppSpec {
	out := make([]AppSpec, 0, len(m.Apps))
	for _, spec := range m.Apps {
		if !spec.Disabled {
			out = append(out, spec)
		}
	}
	return out
}

// Activity builds the application's activity predicate: active when any route
// or any path prefix matches.
func (s AppSpec) Activity() (appshell.ActivityFunc, error) {
	if len(s.Routes) == 0 && len(s.PathPrefixes) == 0 {
		return appshell.Always(), nil
	}
	var preds []appshell.ActivityFunc
	if len(s.Routes) > 0 {
		routes, err := appshell.MatchRoutes(s.Routes...)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRoute, strings.Join(s.Routes, ", "), err)
		}
		preds = append(preds, routes)
	}
	if len(s.PathPrefixes) > 0 {
		preds = append(preds, appshell.PathPrefix(s.PathPrefixes...))
	}
	return func(loc appshell.Location) bool {
		for _, p := range preds {
			if p(loc) {
				return true
			}
		}
		return false
	}, nil
}
