package server

import (
	"encoding/json"

	"github.com/parley-llm/parley/pkg/chat"
)

// completionRequest is the wire shape of POST /v1/chat/completions.
// Unrecognized top-level keys are collected into Extra and passed
// through to the provider adapter untouched.
type completionRequest struct {
	Model       string         `json:"model"`
	Messages    []chat.Message `json:"messages"`
	Temperature *float64       `json:"temperature,omitempty"`
	MaxTokens   *int           `json:"max_tokens,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
	Extra       map[string]any `json:"-"`
}

// reservedRequestKeys are the recognized top-level request fields; every
// other key is treated as a passthrough option.
var reservedRequestKeys = map[string]bool{
	"model":       true,
	"messages":    true,
	"temperature": true,
	"max_tokens":  true,
	"stream":      true,
}

// UnmarshalJSON decodes the recognized fields and collects the rest
// into Extra.
func (r *completionRequest) UnmarshalJSON(data []byte) error {
	type plain completionRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	for key, val := range raw {
		if reservedRequestKeys[key] {
			continue
		}
		var v any
		if err := json.Unmarshal(val, &v); err != nil {
			return err
		}
		if p.Extra == nil {
			p.Extra = make(map[string]any)
		}
		p.Extra[key] = v
	}

	*r = completionRequest(p)
	return nil
}

// options converts the wire request into dispatcher options.
func (r *completionRequest) options() chat.Options {
	return chat.Options{
		Model:       r.Model,
		Temperature: r.Temperature,
		MaxTokens:   r.MaxTokens,
		Extra:       r.Extra,
	}
}

// ObjectChatCompletionChunk is the object tag on every streamed chunk.
const ObjectChatCompletionChunk = "chat.completion.chunk"

// completionChunk is one SSE frame of a streamed completion.
type completionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
	Usage   *chat.Usage   `json:"usage,omitempty"`
}

// chunkChoice is the single streamed choice.
type chunkChoice struct {
	Index        int              `json:"index"`
	Delta        chat.StreamDelta `json:"delta"`
	FinishReason *string          `json:"finish_reason"`
}
