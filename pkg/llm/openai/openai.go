// Package openai provides the OpenAI provider adapter. It speaks the Chat
// Completions wire protocol through the shared openaicompat client and
// supports streaming, transcription, and speech synthesis.
package openai

import (
	"context"

	"github.com/parley-llm/parley/pkg/chat"
	"github.com/parley-llm/parley/pkg/llm"
	"github.com/parley-llm/parley/pkg/llm/openaicompat"
)

// Name is the registry identifier for this provider.
const Name = "openai"

// DefaultBaseURL is the hosted OpenAI API endpoint.
const DefaultBaseURL = "https://api.openai.com"

// OpenAIProvider implements llm.Provider against the OpenAI API.
type OpenAIProvider struct {
	client *openaicompat.Client
	caps   llm.Capabilities
}

// Ensure the full capability surface is implemented at compile time.
var (
	_ llm.Provider    = (*OpenAIProvider)(nil)
	_ llm.Streamer    = (*OpenAIProvider)(nil)
	_ llm.Transcriber = (*OpenAIProvider)(nil)
	_ llm.Speaker     = (*OpenAIProvider)(nil)
)

// New creates an OpenAIProvider. The API key is required and validated
// synchronously; no network call is made here.
func New(opts llm.ProviderOptions) (*OpenAIProvider, error) {
	if opts.APIKey == "" {
		return nil, chat.NewInitError("openai: APIKey is required")
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &OpenAIProvider{
		client: openaicompat.NewClient(baseURL, opts.APIKey, opts.Timeout),
		caps: llm.Capabilities{
			Streaming:     true,
			Transcription: true,
			Speech:        true,
		},
	}, nil
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return Name
}

// Capabilities returns what this provider supports.
func (p *OpenAIProvider) Capabilities() llm.Capabilities {
	return p.caps
}

// Complete performs non-streaming inference.
func (p *OpenAIProvider) Complete(ctx context.Context, req *llm.Request) (*chat.CompletionResponse, error) {
	return p.client.Complete(ctx, req)
}

// Stream performs streaming inference.
func (p *OpenAIProvider) Stream(ctx context.Context, req *llm.Request) (<-chan llm.Event, error) {
	return p.client.Stream(ctx, req)
}

// Transcribe converts audio to text via the transcription endpoint.
func (p *OpenAIProvider) Transcribe(ctx context.Context, audio []byte, req *llm.Request) (string, error) {
	return p.client.Transcribe(ctx, audio, req)
}

// Speech synthesizes audio from text via the speech endpoint.
func (p *OpenAIProvider) Speech(ctx context.Context, text string, req *llm.Request) ([]byte, error) {
	return p.client.Speech(ctx, text, req)
}

// ListModels returns the models available to the configured API key.
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]openaicompat.ChatModel, error) {
	return p.client.ListModels(ctx)
}

// Close releases provider resources.
func (p *OpenAIProvider) Close() error {
	return p.client.Close()
}
