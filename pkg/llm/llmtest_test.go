package llm

import (
	"context"
	"errors"
	"sync"

	"github.com/parley-llm/parley/pkg/chat"
)

// fakeProvider is an in-memory Provider for dispatcher tests. It records
// every request it receives and replays scripted deltas for streaming.
type fakeProvider struct {
	name string
	caps Capabilities

	// Scripted behavior.
	completeResp *chat.CompletionResponse
	completeErr  error
	deltas       []string
	finishReason string
	streamErr    error // emitted as EventError after the deltas
	omitDone     bool  // close the channel without a terminal event

	mu       sync.Mutex
	requests []*Request
	closed   bool
}

var (
	_ Provider = (*fakeProvider)(nil)
	_ Streamer = (*fakeProvider)(nil)
)

func (f *fakeProvider) Name() string               { return f.name }
func (f *fakeProvider) Capabilities() Capabilities { return f.caps }

func (f *fakeProvider) record(req *Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
}

func (f *fakeProvider) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeProvider) lastRequest() *Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

func (f *fakeProvider) Complete(ctx context.Context, req *Request) (*chat.CompletionResponse, error) {
	f.record(req)
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	if f.completeResp != nil {
		return f.completeResp, nil
	}
	reason := chat.FinishReasonStop
	return &chat.CompletionResponse{
		ID:      chat.NewCompletionID(),
		Object:  chat.ObjectChatCompletion,
		Model:   req.Model,
		Choices: []chat.Choice{{Message: chat.NewMessage(chat.RoleAssistant, "ok"), FinishReason: &reason}},
	}, nil
}

func (f *fakeProvider) Stream(ctx context.Context, req *Request) (<-chan Event, error) {
	f.record(req)
	if f.streamErr != nil && len(f.deltas) == 0 && !f.omitDone {
		return nil, f.streamErr
	}

	ch := make(chan Event)
	go func() {
		defer close(ch)
		for _, d := range f.deltas {
			ch <- Event{Type: EventDelta, Delta: chat.StreamDelta{Content: chat.String(d)}}
		}
		if f.streamErr != nil {
			ch <- Event{Type: EventError, Err: f.streamErr}
			return
		}
		if f.omitDone {
			return
		}
		reason := f.finishReason
		if reason == "" {
			reason = chat.FinishReasonStop
		}
		ch <- Event{Type: EventDone, ID: "chatcmpl-fake", FinishReason: reason}
	}()
	return ch, nil
}

func (f *fakeProvider) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// signalingStreamer replays scripted deltas like fakeProvider but
// reports when its producer goroutine has finished, so tests can assert
// the dispatcher never leaves it blocked on the unbuffered channel.
type signalingStreamer struct {
	fakeProvider
	producerExited chan struct{}
}

func (s *signalingStreamer) Stream(ctx context.Context, req *Request) (<-chan Event, error) {
	s.record(req)
	ch := make(chan Event)
	go func() {
		defer close(s.producerExited)
		defer close(ch)
		for _, d := range s.deltas {
			ch <- Event{Type: EventDelta, Delta: chat.StreamDelta{Content: chat.String(d)}}
		}
		ch <- Event{Type: EventDone, ID: "chatcmpl-fake", FinishReason: chat.FinishReasonStop}
	}()
	return ch, nil
}

// transcribingProvider adds the Transcriber and Speaker interfaces.
type transcribingProvider struct {
	fakeProvider
	transcript string
}

var (
	_ Transcriber = (*transcribingProvider)(nil)
	_ Speaker     = (*transcribingProvider)(nil)
)

func (p *transcribingProvider) Transcribe(ctx context.Context, audio []byte, req *Request) (string, error) {
	p.record(req)
	if p.transcript == "" {
		return "", errors.New("no transcript scripted")
	}
	return p.transcript, nil
}

func (p *transcribingProvider) Speech(ctx context.Context, text string, req *Request) ([]byte, error) {
	p.record(req)
	return []byte(text), nil
}

func newFakeClient(p Provider, defaults chat.Options) *Client {
	c, err := NewWithProvider(p, defaults)
	if err != nil {
		panic(err)
	}
	return c
}
