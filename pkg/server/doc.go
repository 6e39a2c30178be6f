// Package server exposes the completion dispatcher over HTTP. It serves
// an OpenAI-compatible chat completions endpoint with both JSON and SSE
// streaming responses, plus retrieval and listing of logged completions.
//
// The package separates concerns the same way the rest of the gateway
// does: the Handler owns request decoding, dispatch, and response
// encoding; HTTP-level middleware (recovery, request ID, logging) wraps
// the handler; Server owns the listener lifecycle including graceful
// shutdown.
package server
