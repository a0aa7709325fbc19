package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/appshell"
	"github.com/GoCodeAlone/appshell/loader"
)

const testManifest = `
apps:
  - name: navbar
    factory: widget
    props:
      theme: dark
      retries: 2
  - name: settings
    factory: widget
    routes: ["/settings/*"]
    pathPrefixes: ["/account"]
  - name: legacy
    factory: widget
    disabled: true
`

func writeManifest(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("should_read_yaml", func(t *testing.T) {
		m, err := Load(writeManifest(t, "apps.yaml", testManifest))
		require.NoError(t, err)
		require.NoError(t, m.Validate())
		require.Len(t, m.Apps, 3)
		assert.Equal(t, []string{"/settings/*"}, m.Apps[1].Routes)
		assert.Len(t, m.Enabled(), 2)
	})

	t.Run("should_read_json", func(t *testing.T) {
		m, err := Load(writeManifest(t, "apps.json", `{"apps":[{"name":"navbar","remote":"http://cdn.local/navbar.json"}]}`))
		require.NoError(t, err)
		assert.Equal(t, "http://cdn.local/navbar.json", m.Apps[0].Remote)
	})

	t.Run("should_apply_environment_overrides", func(t *testing.T) {
		t.Setenv("APPSHELL_NAVBAR_THEME", "light")
		t.Setenv("APPSHELL_NAVBAR_RETRIES", "5")
		t.Setenv("APPSHELL_SETTINGS_DISABLED", "true")
		t.Setenv("APPSHELL_LEGACY_DISABLED", "false")

		m, err := Load(writeManifest(t, "apps.yaml", testManifest))
		require.NoError(t, err)
		assert.Equal(t, "light", m.Apps[0].Props["theme"])
		assert.Equal(t, 5, m.Apps[0].Props["retries"])
		assert.True(t, m.Apps[1].Disabled)

		var names []string
		for _, spec := range m.Enabled() {
			names = append(names, spec.Name)
		}
		assert.Equal(t, []string{"navbar", "legacy"}, names)
	})

	t.Run("should_reject_unknown_format", func(t *testing.T) {
		_, err := Load(writeManifest(t, "apps.ini", ""))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	m := &Manifest{Apps: []AppSpec{
		{Factory: "widget"},
		{Name: "a", Factory: "widget"},
		{Name: "a", Factory: "widget"},
		{Name: "b"},
		{Name: "c", Factory: "widget", Remote: "http://x"},
		{Name: "d", Factory: "widget", Routes: []string{"no-slash"}},
	}}
	err := m.Validate()
	for _, want := range []error{ErrMissingName, ErrDuplicateName, ErrNoSource, ErrAmbiguousSource, ErrInvalidRoute} {
		assert.ErrorIs(t, err, want)
	}
}

func TestActivity(t *testing.T) {
	at := func(path string) appshell.Location { return appshell.Location{Path: path} }

	always, err := AppSpec{Name: "a"}.Activity()
	require.NoError(t, err)
	assert.True(t, always(at("/anything")))

	combined, err := AppSpec{Name: "b", Routes: []string{"/users/{id}"}, PathPrefixes: []string{"/account"}}.Activity()
	require.NoError(t, err)
	assert.True(t, combined(at("/users/1")))
	assert.True(t, combined(at("/account/billing")))
	assert.False(t, combined(at("/")))
}

// testApplier wires an applier to a real shell with a catalog whose "widget"
// factory always works.
func testApplier(t *testing.T) (*Applier, *appshell.Shell) {
	t.Helper()
	s, err := appshell.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	catalog := loader.NewCatalog(map[string]loader.Factory{
		"widget": func(appshell.Props) (appshell.Lifecycle, error) { return appshell.LifecycleFuncs{}, nil },
	})
	return NewApplier(s, catalog, nil, nil), s
}

func settle(t *testing.T, f *appshell.Future) []appshell.AppSnapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	apps, err := f.Wait(ctx)
	require.NoError(t, err)
	return apps
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	spec := func(name string, props map[string]any) AppSpec {
		return AppSpec{Name: name, Factory: "widget", Props: props}
	}

	t.Run("should_register_enabled_apps_once", func(t *testing.T) {
		a, s := testApplier(t)
		m := &Manifest{Apps: []AppSpec{spec("navbar", nil), spec("settings", nil), {Name: "off", Factory: "widget", Disabled: true}}}

		res, err := a.Apply(ctx, m)
		require.NoError(t, err)
		assert.Equal(t, []string{"navbar", "settings"}, res.Added)
		assert.Equal(t, []string{"navbar", "settings"}, a.Managed())
		assert.Len(t, s.Apps(), 2)

		res, err = a.Apply(ctx, m)
		require.NoError(t, err)
		assert.False(t, res.Changed())
	})

	t.Run("should_replace_changed_and_remove_dropped_apps", func(t *testing.T) {
		a, s := testApplier(t)
		_, err := a.Apply(ctx, &Manifest{Apps: []AppSpec{spec("navbar", nil), spec("settings", map[string]any{"v": 1})}})
		require.NoError(t, err)
		settle(t, s.Reconcile())

		res, err := a.Apply(ctx, &Manifest{Apps: []AppSpec{spec("settings", map[string]any{"v": 2})}})
		require.NoError(t, err)
		assert.Equal(t, []string{"navbar", "settings"}, res.Removed)
		assert.Equal(t, []string{"settings"}, res.Added)
		assert.Equal(t, []string{"settings"}, a.Managed())
		assert.Equal(t, []string{"settings"}, appshell.Names(s.Apps()))
	})

	t.Run("should_skip_busy_apps", func(t *testing.T) {
		a, s := testApplier(t)
		_, err := a.Apply(ctx, &Manifest{Apps: []AppSpec{spec("navbar", nil)}})
		require.NoError(t, err)
		f, err := s.Start()
		require.NoError(t, err)
		settle(t, f)

		res, err := a.Apply(ctx, &Manifest{})
		require.NoError(t, err)
		assert.Equal(t, []string{"navbar"}, res.Skipped)
		assert.Equal(t, []string{"navbar"}, a.Managed())
	})

	t.Run("should_give_quarantined_apps_a_fresh_attempt", func(t *testing.T) {
		a, s := testApplier(t)
		broken := &Manifest{Apps: []AppSpec{{Name: "navbar", Factory: "not-in-catalog"}}}
		_, err := a.Apply(ctx, broken)
		require.NoError(t, err)
		settle(t, s.Reconcile())
		snap, _ := s.App("navbar")
		require.Equal(t, appshell.StatusLoadError, snap.Status)

		a.catalog.Register("not-in-catalog", func(appshell.Props) (appshell.Lifecycle, error) {
			return appshell.LifecycleFuncs{}, nil
		})
		res, err := a.Apply(ctx, broken)
		require.NoError(t, err)
		assert.Equal(t, []string{"navbar"}, res.Removed)
		assert.Equal(t, []string{"navbar"}, res.Added)

		settle(t, s.Reconcile())
		snap, _ = s.App("navbar")
		assert.Equal(t, appshell.StatusNotBootstrapped, snap.Status)
	})

	t.Run("should_refuse_invalid_manifest", func(t *testing.T) {
		a, s := testApplier(t)
		_, err := Apply(ctx, s, a.catalog, &Manifest{Apps: []AppSpec{{Name: "x"}}})
		assert.ErrorIs(t, err, ErrNoSource)
		assert.Empty(t, s.Apps())
	})

	t.Run("should_not_touch_unmanaged_apps", func(t *testing.T) {
		a, s := testApplier(t)
		require.NoError(t, s.RegisterApplication("manual", appshell.LifecycleFuncs{}, appshell.Always(), nil))
		_, err := a.Apply(ctx, &Manifest{})
		require.NoError(t, err)
		_, ok := s.App("manual")
		assert.True(t, ok)
	})
}
