package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/parley-llm/parley/pkg/chat"
)

// buildRequest merges client defaults with call-site options (call-site
// wins), validates the result, and resolves the effective model. Returns
// a missing-model error when neither source names a model; no backend
// call happens in that case.
func (c *Client) buildRequest(messages []chat.Message, opts chat.Options, stream bool) (*Request, error) {
	merged := chat.Merge(c.defaults, opts)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	if merged.Model == "" {
		return nil, chat.NewMissingModelError()
	}
	if err := chat.ValidateMessages(messages); err != nil {
		return nil, err
	}

	return &Request{
		Model:       merged.Model,
		Messages:    messages,
		Temperature: merged.Temperature,
		MaxTokens:   merged.MaxTokens,
		Stream:      stream,
		Extra:       merged.Extra,
	}, nil
}

// Complete performs a non-streaming completion: one backend request,
// blocking until the full response is available. Every failure resolves
// to a *chat.CompletionError.
func (c *Client) Complete(ctx context.Context, messages []chat.Message, opts chat.Options) (resp *chat.CompletionResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = chat.NewBackendError(fmt.Sprintf("panic during completion: %v", r), "")
		}
	}()

	req, err := c.buildRequest(messages, opts, false)
	if err != nil {
		return nil, err
	}

	resp, perr := c.provider.Complete(ctx, req)
	if perr != nil {
		return nil, chat.AsCompletionError(perr)
	}
	return resp, nil
}

// CompleteStreaming performs a streaming completion. Each delta is handed
// to sink synchronously, in arrival order, before the next backend event
// is read. After the terminal event the call still returns one aggregated
// CompletionResponse whose content is the concatenation of every delta's
// content in emission order; callers that only want the live stream may
// ignore it.
//
// If the stream is interrupted mid-flight the call returns a
// *chat.CompletionError — deltas already delivered to the sink are not
// retracted, but the call itself reports failure. A panic inside the sink
// is recovered and returned as a sink fault.
func (c *Client) CompleteStreaming(ctx context.Context, messages []chat.Message, sink chat.Sink, opts chat.Options) (resp *chat.CompletionResponse, err error) {
	if sink == nil {
		return nil, chat.NewInitError("delta sink must not be nil; use Complete for non-streaming calls")
	}
	if !c.caps.Streaming {
		return nil, UnsupportedCapability(CapabilityStreaming, c.name)
	}

	req, err := c.buildRequest(messages, opts, true)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = chat.NewSinkFault(fmt.Sprintf("panic in delta sink: %v", r))
		}
	}()

	// Safe: the Streaming flag is only set when the provider implements
	// Streamer (resolved at construction).
	eventCh, serr := c.provider.(Streamer).Stream(ctx, req)
	if serr != nil {
		return nil, chat.AsCompletionError(serr)
	}

	// A sink panic or an error event stops the receive loop before the
	// channel closes. The producer must never stay blocked on the
	// unbuffered channel: cancel it and drain whatever it still sends.
	defer func() {
		cancel()
		go func() {
			for range eventCh {
			}
		}()
	}()

	var content strings.Builder
	var streamID string
	var finishReason string
	var usage *chat.Usage
	sawDone := false

	for ev := range eventCh {
		switch ev.Type {
		case EventDelta:
			sink(ev.Delta)
			content.WriteString(ev.Delta.Text())

		case EventDone:
			// Backends may split the terminal signal across events
			// (finish reason first, usage in a trailing chunk); merge
			// instead of overwriting.
			sawDone = true
			if ev.ID != "" {
				streamID = ev.ID
			}
			if ev.FinishReason != "" {
				finishReason = ev.FinishReason
			}
			if ev.Usage != nil {
				usage = ev.Usage
			}

		case EventError:
			return nil, chat.AsCompletionError(ev.Err)
		}
	}

	// Channel closed. Distinguish a clean terminal event from an
	// interrupted stream: partial content already sent to the sink
	// stands either way, but an interrupted call must report failure.
	if !sawDone {
		if ctx.Err() != nil {
			return nil, chat.NewBackendError("stream cancelled: "+ctx.Err().Error(), "stream_cancelled")
		}
		return nil, chat.NewBackendError("stream ended without a terminal event", "stream_interrupted")
	}

	return c.aggregateResponse(req, streamID, content.String(), finishReason, usage), nil
}

// aggregateResponse materializes the post-stream CompletionResponse. The
// finish reason follows the same policy as the non-streaming path.
func (c *Client) aggregateResponse(req *Request, id, content, finishReason string, usage *chat.Usage) *chat.CompletionResponse {
	if id == "" {
		id = chat.NewCompletionID()
	}
	reason := chat.FinishReasonFor(finishReason, req.MaxTokens != nil)

	return &chat.CompletionResponse{
		ID:      id,
		Object:  chat.ObjectChatCompletion,
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chat.Choice{{
			Index:        0,
			Message:      chat.NewMessage(chat.RoleAssistant, content),
			FinishReason: &reason,
		}},
		Usage: usage,
	}
}

// Transcribe converts audio to text. Returns a capability error when the
// provider does not implement transcription; the check is synchronous and
// precedes any network call.
func (c *Client) Transcribe(ctx context.Context, audio []byte, opts chat.Options) (string, error) {
	if !c.caps.Transcription {
		return "", UnsupportedCapability(CapabilityTranscription, c.name)
	}

	req, err := c.buildRequest(nil, opts, false)
	if err != nil {
		return "", err
	}

	text, terr := c.provider.(Transcriber).Transcribe(ctx, audio, req)
	if terr != nil {
		return "", chat.AsCompletionError(terr)
	}
	return text, nil
}

// Speech synthesizes audio from text. Returns a capability error when the
// provider does not implement speech synthesis.
func (c *Client) Speech(ctx context.Context, text string, opts chat.Options) ([]byte, error) {
	if !c.caps.Speech {
		return nil, UnsupportedCapability(CapabilitySpeech, c.name)
	}

	req, err := c.buildRequest(nil, opts, false)
	if err != nil {
		return nil, err
	}

	audio, serr := c.provider.(Speaker).Speech(ctx, text, req)
	if serr != nil {
		return nil, chat.AsCompletionError(serr)
	}
	return audio, nil
}
