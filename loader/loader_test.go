package loader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/appshell"
)

// propsLifecycle remembers the props it was built with.
type propsLifecycle struct {
	appshell.LifecycleFuncs
	props appshell.Props
}

func recordingFactory(props appshell.Props) (appshell.Lifecycle, error) {
	return &propsLifecycle{props: props}, nil
}

func TestCatalog(t *testing.T) {
	c := NewCatalog(map[string]Factory{"navbar": recordingFactory})
	c.Register("footer", recordingFactory)
	assert.Equal(t, []string{"footer", "navbar"}, c.Names())

	_, err := c.Lookup("missing")
	assert.ErrorIs(t, err, ErrUnknownFactory)

	t.Run("should_build_local_apps_on_load", func(t *testing.T) {
		l := c.Local("navbar", appshell.Props{"theme": "dark"})
		lc, err := l.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, appshell.Props{"theme": "dark"}, lc.(*propsLifecycle).props)
	})

	t.Run("should_fail_the_load_for_unknown_factories", func(t *testing.T) {
		_, err := c.Local("missing", nil).Load(context.Background())
		assert.ErrorIs(t, err, ErrUnknownFactory)
	})
}

func descriptorServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRemote(t *testing.T) {
	catalog := NewCatalog(map[string]Factory{"settings": recordingFactory})

	t.Run("should_build_from_descriptor_with_merged_props", func(t *testing.T) {
		srv := descriptorServer(t, http.StatusOK, `{"factory":"settings","props":{"theme":"light","version":"2"}}`)
		r := NewRemote(srv.URL, catalog, appshell.Props{"theme": "dark", "region": "eu"}, nil)

		lc, err := r.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, appshell.Props{"theme": "light", "version": "2", "region": "eu"}, lc.(*propsLifecycle).props)
	})

	t.Run("should_fail_on_http_error", func(t *testing.T) {
		srv := descriptorServer(t, http.StatusNotFound, `{"error":"not found"}`)
		_, err := NewRemote(srv.URL, catalog, nil, nil).Load(context.Background())
		assert.ErrorIs(t, err, ErrFetchFailed)
		assert.ErrorContains(t, err, "404")
	})

	t.Run("should_fail_on_empty_factory", func(t *testing.T) {
		srv := descriptorServer(t, http.StatusOK, `{"props":{}}`)
		_, err := NewRemote(srv.URL, catalog, nil, nil).Fetch(context.Background())
		assert.ErrorIs(t, err, ErrEmptyFactory)
	})

	t.Run("should_fail_on_unknown_factory", func(t *testing.T) {
		srv := descriptorServer(t, http.StatusOK, `{"factory":"nope"}`)
		_, err := NewRemote(srv.URL, catalog, nil, nil).Load(context.Background())
		assert.ErrorIs(t, err, ErrUnknownFactory)
	})

	t.Run("should_fail_on_unreachable_host", func(t *testing.T) {
		srv := descriptorServer(t, http.StatusOK, `{}`)
		url := srv.URL
		srv.Close()
		_, err := NewRemote(url, catalog, nil, nil).Load(context.Background())
		assert.ErrorIs(t, err, ErrFetchFailed)
	})

	t.Run("should_quarantine_through_the_shell", func(t *testing.T) {
		srv := descriptorServer(t, http.StatusInternalServerError, `{}`)
		s, err := appshell.New()
		require.NoError(t, err)
		ctx := context.Background()
		defer func() { _ = s.Close(ctx) }()

		require.NoError(t, s.RegisterApplication("remote", NewRemote(srv.URL, catalog, nil, nil), appshell.Always(), nil))
		_, err = s.Reconcile().Wait(ctx)
		require.NoError(t, err)
		snap, ok := s.App("remote")
		require.True(t, ok)
		assert.Equal(t, appshell.StatusLoadError, snap.Status)
	})
}
