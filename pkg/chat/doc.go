// Package chat defines the canonical chat completion data model shared by
// all provider adapters: messages, completion options, responses, streaming
// deltas, and the normalized error shape.
//
// Values in this package are provider-neutral. Adapters translate them to
// and from their backend wire formats; the dispatcher in pkg/llm never sees
// a backend-native type.
package chat
