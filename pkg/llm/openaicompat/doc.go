// Package openaicompat implements the shared HTTP plumbing for backends
// speaking the OpenAI Chat Completions wire protocol. Provider adapters
// embed a Client and delegate Complete/Stream/Transcribe/Speech to it,
// keeping only credential handling and capability declarations to
// themselves.
package openaicompat
