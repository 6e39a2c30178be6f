// Package llm is the uniform entry point for invoking LLM backends. A
// Client is created once per logical backend connection via New and reused
// across many concurrent calls; the backend is selected by provider name
// through the registry.
//
// The required capability is non-streaming completion. Streaming,
// transcription, and speech synthesis are optional: providers declare them
// via Capabilities and implement the corresponding narrower interface
// (Streamer, Transcriber, Speaker). Capability support is resolved once at
// client construction and checked synchronously before any network call.
package llm
