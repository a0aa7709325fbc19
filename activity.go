package appshell

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Location is the trigger context activity predicates are evaluated against.
type Location struct {
	Path     string `json:"path"`
	RawQuery string `json:"rawQuery,omitempty"`
	Fragment string `json:"fragment,omitempty"`
}

// ParseLocation parses a URL or bare path into a Location.
func ParseLocation(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("%w: parse location %q: %w", ErrInvalidArgument, raw, err)
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return Location{Path: path, RawQuery: u.RawQuery, Fragment: u.Fragment}, nil
}

// String renders the location back into a relative URL.
func (l Location) String() string {
	u := url.URL{Path: l.Path, RawQuery: l.RawQuery, Fragment: l.Fragment}
	return u.String()
}

// ActivityFunc decides whether an application should be mounted at a location.
// It must be a pure function of its argument.
type ActivityFunc func(loc Location) bool

// Always is active everywhere.
func Always() ActivityFunc {
	return func(Location) bool { return true }
}

// Never is active nowhere.
func Never() ActivityFunc {
	return func(Location) bool { return false }
}

// PathPrefix is active when the location path starts with any of the prefixes.
func PathPrefix(prefixes ...string) ActivityFunc {
	return func(loc Location) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(loc.Path, p) {
				return true
			}
		}
		return false
	}
}

// MatchRoutes is active when the location path matches any of the chi route
// patterns, for example "/users/{id}" or "/docs/*".
func MatchRoutes(patterns ...string) (ActivityFunc, error) {
	if len(patterns) == 0 {
		return nil, invalidArgument("at least one route pattern is required")
	}
	mux := chi.NewRouter()
	noop := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	for _, p := range patterns {
		if err := handleRoute(mux, p, noop); err != nil {
			return nil, err
		}
	}
	return func(loc Location) bool {
		return mux.Match(chi.NewRouteContext(), http.MethodGet, loc.Path)
	}, nil
}

// handleRoute registers a pattern, turning chi's registration panic into an error.
func handleRoute(mux *chi.Mux, pattern string, h http.Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = invalidArgument("route pattern %q: %v", pattern, r)
		}
	}()
	mux.Handle(pattern, h)
	return nil
}
