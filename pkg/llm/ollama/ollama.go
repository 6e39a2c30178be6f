// Package ollama provides the Ollama provider adapter. Ollama exposes an
// OpenAI-compatible Chat Completions endpoint, so the adapter reuses the
// shared openaicompat client; it supports streaming but neither audio
// capability.
package ollama

import (
	"context"

	"github.com/parley-llm/parley/pkg/chat"
	"github.com/parley-llm/parley/pkg/llm"
	"github.com/parley-llm/parley/pkg/llm/openaicompat"
)

// Name is the registry identifier for this provider.
const Name = "ollama"

// DefaultBaseURL is the local Ollama daemon endpoint.
const DefaultBaseURL = "http://localhost:11434"

// OllamaProvider implements llm.Provider against a local Ollama daemon.
// No API key is required.
type OllamaProvider struct {
	client *openaicompat.Client
	caps   llm.Capabilities
}

var (
	_ llm.Provider = (*OllamaProvider)(nil)
	_ llm.Streamer = (*OllamaProvider)(nil)
)

// New creates an OllamaProvider. No network call is made here.
func New(opts llm.ProviderOptions) (*OllamaProvider, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &OllamaProvider{
		client: openaicompat.NewClient(baseURL, opts.APIKey, opts.Timeout),
		caps: llm.Capabilities{
			Streaming: true,
		},
	}, nil
}

// Name returns the provider identifier.
func (p *OllamaProvider) Name() string {
	return Name
}

// Capabilities returns what this provider supports.
func (p *OllamaProvider) Capabilities() llm.Capabilities {
	return p.caps
}

// Complete performs non-streaming inference.
func (p *OllamaProvider) Complete(ctx context.Context, req *llm.Request) (*chat.CompletionResponse, error) {
	return p.client.Complete(ctx, req)
}

// Stream performs streaming inference.
func (p *OllamaProvider) Stream(ctx context.Context, req *llm.Request) (<-chan llm.Event, error) {
	return p.client.Stream(ctx, req)
}

// ListModels returns the models pulled into the local daemon.
func (p *OllamaProvider) ListModels(ctx context.Context) ([]openaicompat.ChatModel, error) {
	return p.client.ListModels(ctx)
}

// Close releases provider resources.
func (p *OllamaProvider) Close() error {
	return p.client.Close()
}
