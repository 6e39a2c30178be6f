package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"github.com/parley-llm/parley/pkg/chat"
	"github.com/parley-llm/parley/pkg/llm"
)

// ParseSSEStream reads Chat Completions SSE chunks from the given reader,
// translates each chunk to llm.Event values, and sends them on ch. The
// channel is NOT closed by this function; the caller is responsible for
// closing it.
//
// SSE format expected:
//
//	data: {"id":"...","choices":[...]}\n
//	\n
//	data: [DONE]\n
//	\n
//
// Malformed chunks are logged and skipped. Context cancellation stops
// reading immediately, and every send honors it so the producer never
// stays blocked once the consumer is gone.
func ParseSSEStream(ctx context.Context, body io.Reader, ch chan<- llm.Event) {
	scanner := bufio.NewScanner(body)

	for scanner.Scan() {
		// Check for context cancellation between lines.
		if ctx.Err() != nil {
			return
		}

		line := scanner.Text()

		// SSE lines that don't start with "data: " are ignored
		// (empty lines, comments starting with ":").
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		payload := strings.TrimPrefix(line, "data: ")

		// The [DONE] sentinel ends the stream.
		if payload == "[DONE]" {
			return
		}

		var chunk ChatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			slog.Warn("skipping malformed SSE chunk",
				"error", err.Error(),
				"data", Truncate(payload, 200),
			)
			continue
		}

		TranslateChunk(ctx, &chunk, ch)
	}

	// Scanner error (e.g., connection dropped).
	if err := scanner.Err(); err != nil {
		// Context cancellation is not an error from our perspective.
		if ctx.Err() != nil {
			return
		}
		send(ctx, ch, llm.Event{
			Type: llm.EventError,
			Err:  chat.NewBackendError("SSE stream read error: "+err.Error(), "stream_read_error"),
		})
	}
}

// send delivers an event on the unbuffered channel, giving up when the
// context is cancelled. A blocked send with no consumer would otherwise
// pin the producer goroutine and the open response body.
func send(ctx context.Context, ch chan<- llm.Event, ev llm.Event) {
	select {
	case ch <- ev:
	case <-ctx.Done():
	}
}

// TranslateChunk converts a single ChatCompletionChunk into llm.Event
// values sent on the channel.
func TranslateChunk(ctx context.Context, chunk *ChatCompletionChunk, ch chan<- llm.Event) {
	// No choices means a usage-only final chunk (sent when the request set
	// stream_options.include_usage), or nothing to translate.
	if len(chunk.Choices) == 0 {
		if chunk.Usage != nil {
			send(ctx, ch, llm.Event{
				Type:  llm.EventDone,
				ID:    chunk.ID,
				Usage: translateUsage(chunk.Usage),
			})
		}
		return
	}

	choice := chunk.Choices[0]
	delta := choice.Delta

	// finish_reason signals stream completion for this choice. A final
	// chunk may still carry trailing content.
	if choice.FinishReason != nil {
		if delta.Content != nil && *delta.Content != "" {
			send(ctx, ch, llm.Event{
				Type:  llm.EventDelta,
				Delta: chat.StreamDelta{Content: delta.Content},
			})
		}
		send(ctx, ch, llm.Event{
			Type:         llm.EventDone,
			ID:           chunk.ID,
			FinishReason: *choice.FinishReason,
			Usage:        translateUsage(chunk.Usage),
		})
		return
	}

	// Text content delta.
	if delta.Content != nil && *delta.Content != "" {
		ev := llm.Event{
			Type:  llm.EventDelta,
			Delta: chat.StreamDelta{Content: delta.Content},
		}
		if delta.Role != "" {
			role := chat.Role(delta.Role)
			ev.Delta.Role = &role
		}
		send(ctx, ch, ev)
		return
	}

	// Role-only chunk: the first chunk of a stream announces the assistant
	// role with no content.
	if delta.Role != "" {
		role := chat.Role(delta.Role)
		send(ctx, ch, llm.Event{
			Type:  llm.EventDelta,
			Delta: chat.StreamDelta{Role: &role},
		})
		return
	}

	// Empty delta with no content and no role. Some backends emit these;
	// silently skip.
}

// Truncate limits a string to maxLen characters for log output.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
