package llm

import (
	"fmt"

	"github.com/parley-llm/parley/pkg/chat"
)

// Client is an opaque per-provider handle. It is created once via New and
// is immutable afterwards: default options and capability flags are fixed
// at construction, so a Client is safe for concurrent reuse across many
// simultaneous calls. Per-call overrides always produce call-scoped
// copies; nothing mutates the shared Client.
type Client struct {
	provider Provider
	name     string
	defaults chat.Options
	caps     Capabilities
}

// New creates a Client for the named provider. The provider's factory
// validates construction options (e.g. a required API key) synchronously;
// no network call is made. An unknown provider name or a factory rejection
// is reported as an init error.
func New(provider string, opts ProviderOptions) (*Client, error) {
	factory, ok := lookup(provider)
	if !ok {
		return nil, chat.NewInitError(fmt.Sprintf("unknown provider %q (registered: %v)", provider, Providers()))
	}

	p, err := factory(opts)
	if err != nil {
		if ce, ok := err.(*chat.CompletionError); ok {
			return nil, ce
		}
		return nil, chat.NewInitError(err.Error())
	}

	defaults := chat.Options{
		Model:       opts.Model,
		Temperature: opts.Temperature,
	}
	if err := defaults.Validate(); err != nil {
		p.Close()
		return nil, err
	}

	return &Client{
		provider: p,
		name:     p.Name(),
		defaults: defaults,
		caps:     resolveCapabilities(p),
	}, nil
}

// NewWithProvider wraps an already constructed Provider. Used by the
// gateway and by tests that inject fakes.
func NewWithProvider(p Provider, defaults chat.Options) (*Client, error) {
	if p == nil {
		return nil, chat.NewInitError("provider must not be nil")
	}
	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		provider: p,
		name:     p.Name(),
		defaults: defaults,
		caps:     resolveCapabilities(p),
	}, nil
}

// Provider returns the provider name this client dispatches to.
func (c *Client) Provider() string {
	return c.name
}

// Capabilities returns the capability flags resolved at construction.
func (c *Client) Capabilities() Capabilities {
	return c.caps
}

// DefaultModel returns the client-level default model, or "".
func (c *Client) DefaultModel() string {
	return c.defaults.Model
}

// Close releases the underlying provider's resources.
func (c *Client) Close() error {
	return c.provider.Close()
}
