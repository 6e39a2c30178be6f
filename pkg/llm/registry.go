package llm

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// ProviderOptions is the construction option bag passed to New. APIKey and
// BaseURL configure the backend connection; Model and Temperature become
// the client's default completion options.
type ProviderOptions struct {
	// APIKey is the backend credential. Required by providers that
	// authenticate; checked eagerly at construction, never over the wire.
	APIKey string

	// BaseURL overrides the provider's default endpoint.
	BaseURL string

	// Model is the client-level default model.
	Model string

	// Temperature is the client-level default temperature.
	Temperature *float64

	// Timeout bounds non-streaming backend requests. Zero means the
	// provider default.
	Timeout time.Duration

	// Extra holds provider-specific construction options.
	Extra map[string]any
}

// Factory constructs a Provider from construction options. Factories must
// validate credentials synchronously and must not perform network I/O.
type Factory func(opts ProviderOptions) (Provider, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
)

// Register makes a provider factory available under the given name.
// Registering a duplicate name panics; this is a wiring error.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("llm: provider %q registered twice", name))
	}
	factories[name] = f
}

// Providers returns the registered provider names, sorted.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookup(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}
