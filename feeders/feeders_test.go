package feeders

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	Name   string   `yaml:"name" toml:"name" json:"name"`
	Routes []string `yaml:"routes" toml:"routes" json:"routes"`
}

type testMeta struct {
	Owner string `yaml:"owner" toml:"owner" json:"owner"`
}

type testFile struct {
	Apps []testApp `yaml:"apps" toml:"apps" json:"apps"`
	Meta testMeta  `yaml:"meta" toml:"meta" json:"meta"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFileFeeders(t *testing.T) {
	want := testFile{
		Apps: []testApp{
			{Name: "navbar", Routes: []string{"/"}},
			{Name: "settings", Routes: []string{"/settings/*"}},
		},
		Meta: testMeta{Owner: "web"},
	}

	files := map[string]string{
		"apps.yaml": `
meta:
  owner: web
apps:
  - name: navbar
    routes: ["/"]
  - name: settings
    routes: ["/settings/*"]
`,
		"apps.toml": `
[meta]
owner = "web"

[[apps]]
name = "navbar"
routes = ["/"]

[[apps]]
name = "settings"
routes = ["/settings/*"]
`,
		"apps.json": `{"meta": {"owner": "web"}, "apps": [
  {"name": "navbar", "routes": ["/"]},
  {"name": "settings", "routes": ["/settings/*"]}
]}`,
	}

	for name, content := range files {
		t.Run(filepath.Ext(name), func(t *testing.T) {
			path := writeFile(t, name, content)
			feeder, err := ForFile(path)
			require.NoError(t, err)

			var got testFile
			require.NoError(t, feeder.Feed(&got))
			assert.Equal(t, want, got)

			var meta testMeta
			require.NoError(t, feeder.FeedKey("meta", &meta))
			assert.Equal(t, want.Meta, meta)

			var missing testMeta
			require.NoError(t, feeder.FeedKey("nope", &missing))
			assert.Zero(t, missing)
		})
	}

	t.Run("should_reject_unknown_extension", func(t *testing.T) {
		_, err := ForFile("apps.ini")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("should_wrap_read_errors", func(t *testing.T) {
		var got testFile
		err := NewYamlFeeder(filepath.Join(t.TempDir(), "missing.yaml")).Feed(&got)
		assert.ErrorContains(t, err, "yaml feed error")
	})
}

func TestAffixedEnvFeeder(t *testing.T) {
	type nested struct {
		Enabled bool `env:"ENABLED"`
	}
	type target struct {
		Name    string `env:"NAME"`
		Port    int    `env:"PORT"`
		Skipped string
		Nested  nested
	}

	t.Run("should_feed_tagged_fields_with_affixes", func(t *testing.T) {
		t.Setenv("APP_NAME_OVERRIDE", "shell")
		t.Setenv("APP_PORT_OVERRIDE", "8081")
		t.Setenv("APP_ENABLED_OVERRIDE", "true")
		t.Setenv("APP_PORT", "1")

		var got target
		require.NoError(t, NewAffixedEnvFeeder("APP", "OVERRIDE").Feed(&got))
		assert.Equal(t, target{Name: "shell", Port: 8081, Nested: nested{Enabled: true}}, got)
	})

	t.Run("should_report_conversion_errors", func(t *testing.T) {
		t.Setenv("APP_PORT", "eighty")
		var got target
		err := NewAffixedEnvFeeder("APP", "").Feed(&got)
		assert.ErrorContains(t, err, "Port")
	})

	t.Run("should_validate_arguments", func(t *testing.T) {
		var got target
		assert.ErrorIs(t, NewAffixedEnvFeeder("", "").Feed(&got), ErrEnvEmptyPrefixAndSuffix)
		assert.ErrorIs(t, NewAffixedEnvFeeder("APP", "").Feed(got), ErrEnvInvalidStructure)
		assert.ErrorIs(t, NewAffixedEnvFeeder("", "").FeedProps(map[string]any{}), ErrEnvEmptyPrefixAndSuffix)
	})

	t.Run("should_override_existing_props_with_their_types", func(t *testing.T) {
		t.Setenv("APPSHELL_NAV_BAR_THEME", "light")
		t.Setenv("APPSHELL_NAV_BAR_RETRIES", "5")
		t.Setenv("APPSHELL_NAV_BAR_API_URL", "https://api.local")
		t.Setenv("APPSHELL_NAV_BAR_UNKNOWN", "ignored")

		props := map[string]any{"theme": "dark", "retries": 1, "api.url": nil}
		require.NoError(t, NewAffixedEnvFeeder(EnvName("APPSHELL", "nav-bar"), "").FeedProps(props))
		assert.Equal(t, map[string]any{"theme": "light", "retries": 5, "api.url": "https://api.local"}, props)
	})

	t.Run("should_report_prop_conversion_errors", func(t *testing.T) {
		t.Setenv("APPSHELL_RETRIES", "many")
		err := NewAffixedEnvFeeder("APPSHELL", "").FeedProps(map[string]any{"retries": 1})
		assert.ErrorContains(t, err, "retries")
	})
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "APPSHELL_NAV_BAR_API_URL", EnvName("appshell", "nav-bar", "api.url"))
}
