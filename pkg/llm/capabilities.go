package llm

import (
	"fmt"

	"github.com/parley-llm/parley/pkg/chat"
)

// Capability names an optional provider operation. The string value is
// the display form used in unsupported-capability error messages.
type Capability string

const (
	CapabilityStreaming     Capability = "Streaming"
	CapabilityTranscription Capability = "Transcription"
	CapabilitySpeech        Capability = "Speech synthesis"
)

// Capabilities declares which optional operations a provider supports.
// Non-streaming completion is required and has no flag.
type Capabilities struct {
	// Streaming indicates support for incremental delta streaming.
	Streaming bool

	// Transcription indicates support for audio-to-text.
	Transcription bool

	// Speech indicates support for text-to-speech synthesis.
	Speech bool
}

// resolveCapabilities intersects the provider's declared capabilities with
// its interface conformance. A flag without the matching interface (or the
// other way around) resolves to unsupported, so the dispatcher can rely on
// a cached flag implying a safe type assertion.
func resolveCapabilities(p Provider) Capabilities {
	caps := p.Capabilities()

	if _, ok := p.(Streamer); !ok {
		caps.Streaming = false
	}
	if _, ok := p.(Transcriber); !ok {
		caps.Transcription = false
	}
	if _, ok := p.(Speaker); !ok {
		caps.Speech = false
	}

	return caps
}

// UnsupportedCapability builds the uniform capability error, naming both
// the capability and the provider. Detected before any network call.
func UnsupportedCapability(cap Capability, provider string) *chat.CompletionError {
	return chat.NewCapabilityError(
		fmt.Sprintf("%s is not supported by the %s provider.", cap, provider),
	)
}
