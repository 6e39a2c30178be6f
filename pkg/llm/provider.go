package llm

import (
	"context"

	"github.com/parley-llm/parley/pkg/chat"
)

// Request is the backend-facing call, produced by the dispatcher from the
// caller's messages and merged options. It is call-scoped: adapters must
// never stash it or mutate shared state to serve it.
type Request struct {
	Model       string         `json:"model"`
	Messages    []chat.Message `json:"messages"`
	Temperature *float64       `json:"temperature,omitempty"`
	MaxTokens   *int           `json:"max_tokens,omitempty"`
	Stream      bool           `json:"stream,omitempty"`

	// Extra holds provider-specific parameters that don't map to the
	// recognized option keys. Passed through opaquely.
	Extra map[string]any `json:"-"`
}

// Provider abstracts an LLM inference backend. Each adapter handles its
// own wire protocol internally and exchanges only canonical chat types.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai", "ollama").
	Name() string

	// Capabilities returns what this provider supports. The dispatcher
	// intersects the declared flags with interface conformance at client
	// construction.
	Capabilities() Capabilities

	// Complete performs non-streaming inference. Backend faults are
	// returned as *chat.CompletionError; no backend-native error type
	// escapes the adapter.
	Complete(ctx context.Context, req *Request) (*chat.CompletionResponse, error)

	// Close releases provider resources (HTTP clients, connections).
	Close() error
}

// Streamer is the optional streaming capability. The returned channel is
// unbuffered and closed by the provider when the stream completes or
// errors: the producer cannot read the next backend event until the
// consumer has taken the previous one, which is what gives the delta
// protocol its sink-before-next-read backpressure.
type Streamer interface {
	Stream(ctx context.Context, req *Request) (<-chan Event, error)
}

// Transcriber is the optional audio transcription capability.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, req *Request) (string, error)
}

// Speaker is the optional text-to-speech capability.
type Speaker interface {
	Speech(ctx context.Context, text string, req *Request) ([]byte, error)
}

// EventType classifies a streaming event from the backend.
type EventType int

const (
	EventDelta EventType = iota // Incremental delta content
	EventDone                   // Stream finished normally
	EventError                  // Stream failed
)

// Event is a single streaming event emitted by a Streamer. Zero or more
// EventDelta values are followed by exactly one EventDone or EventError;
// a channel that closes without either marks an interrupted stream.
type Event struct {
	// Type indicates what kind of event this is.
	Type EventType

	// Delta carries incremental content for EventDelta.
	Delta chat.StreamDelta

	// ID is the backend-issued stream identifier, set on EventDone when
	// the backend reported one.
	ID string

	// FinishReason is the raw backend finish reason, set on EventDone.
	FinishReason string

	// Usage is set on EventDone when the backend reported token counts.
	Usage *chat.Usage

	// Err is populated for EventError.
	Err error
}
