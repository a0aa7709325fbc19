package loader

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/GoCodeAlone/appshell"
)

// Descriptor is the document a remote application publishes: which factory
// builds it and the props it is built with.
type Descriptor struct {
	Factory string         `json:"factory"`
	Props   map[string]any `json:"props,omitempty"`
}

// Remote loads an application by fetching its descriptor over HTTP. There are
// no retries: a failed fetch is a failed load.
type Remote struct {
	URL     string
	Catalog *Catalog
	// Props are the base props; descriptor props override them.
	Props  appshell.Props
	Client *resty.Client
}

// NewClient returns the resty client remote loaders share by default.
func NewClient() *resty.Client {
	return resty.New().
		SetTimeout(15*time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "appshell-loader/1.0")
}

// NewRemote creates a remote loader. A nil client gets NewClient.
func NewRemote(url string, catalog *Catalog, props appshell.Props, client *resty.Client) *Remote {
	if client == nil {
		client = NewClient()
	}
	return &Remote{URL: url, Catalog: catalog, Props: props, Client: client}
}

// Load implements appshell.Loader.
func (r *Remote) Load(ctx context.Context) (appshell.Lifecycle, error) {
	d, err := r.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	factory, err := r.Catalog.Lookup(d.Factory)
	if err != nil {
		return nil, err
	}

	props := make(appshell.Props, len(r.Props)+len(d.Props))
	maps.Copy(props, r.Props)
	maps.Copy(props, d.Props)
	return factory(props)
}

// Fetch retrieves and decodes the descriptor.
func (r *Remote) Fetch(ctx context.Context) (*Descriptor, error) {
	var d Descriptor
	resp, err := r.Client.R().
		SetContext(ctx).
		SetResult(&d).
		Get(r.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, r.URL, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: %s: status %d", ErrFetchFailed, r.URL, resp.StatusCode())
	}
	if d.Factory == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFactory, r.URL)
	}
	return &d, nil
}
