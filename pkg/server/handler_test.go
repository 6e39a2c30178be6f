package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/parley-llm/parley/pkg/chat"
	"github.com/parley-llm/parley/pkg/llm"
	"github.com/parley-llm/parley/pkg/observability"
	"github.com/parley-llm/parley/pkg/storage"
	"github.com/parley-llm/parley/pkg/storage/memory"
	dto "github.com/prometheus/client_model/go"
)

// fakeProvider is a non-streaming test double.
type fakeProvider struct {
	name       string
	completeFn func(ctx context.Context, req *llm.Request) (*chat.CompletionResponse, error)
}

func (f *fakeProvider) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakeProvider) Capabilities() llm.Capabilities {
	return llm.Capabilities{}
}

func (f *fakeProvider) Complete(ctx context.Context, req *llm.Request) (*chat.CompletionResponse, error) {
	return f.completeFn(ctx, req)
}

func (f *fakeProvider) Close() error { return nil }

// fakeStreamProvider adds a canned event stream.
type fakeStreamProvider struct {
	fakeProvider
	events []llm.Event
}

func (f *fakeStreamProvider) Capabilities() llm.Capabilities {
	return llm.Capabilities{Streaming: true}
}

func (f *fakeStreamProvider) Stream(ctx context.Context, req *llm.Request) (<-chan llm.Event, error) {
	ch := make(chan llm.Event)
	go func() {
		defer close(ch)
		for _, ev := range f.events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func fixedResponse(id, content string) *chat.CompletionResponse {
	reason := chat.FinishReasonStop
	return &chat.CompletionResponse{
		ID:      id,
		Object:  chat.ObjectChatCompletion,
		Created: time.Now().Unix(),
		Model:   "test-model",
		Choices: []chat.Choice{{
			Index:        0,
			Message:      chat.NewMessage(chat.RoleAssistant, content),
			FinishReason: &reason,
		}},
		Usage: &chat.Usage{PromptTokens: 5, CompletionTokens: 3, TotalTokens: 8},
	}
}

func newTestHandler(t *testing.T, p llm.Provider, store storage.Store) *Handler {
	t.Helper()
	client, err := llm.NewWithProvider(p, chat.Options{Model: "test-model"})
	if err != nil {
		t.Fatalf("NewWithProvider: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewHandler(client, store, HandlerConfig{})
}

func postCompletion(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateCompletion_JSON(t *testing.T) {
	store := memory.New(0)
	p := &fakeProvider{
		completeFn: func(_ context.Context, req *llm.Request) (*chat.CompletionResponse, error) {
			if req.Model != "test-model" {
				t.Errorf("model = %q, want default", req.Model)
			}
			return fixedResponse("chatcmpl-json1", "hello back"), nil
		},
	}
	h := newTestHandler(t, p, store)

	rec := postCompletion(t, h, `{"messages":[{"role":"user","content":"hello"}]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp chat.CompletionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.ID != "chatcmpl-json1" || resp.Text() != "hello back" {
		t.Errorf("response = %+v", resp)
	}
	if resp.Object != chat.ObjectChatCompletion {
		t.Errorf("object = %q", resp.Object)
	}

	// The completion is logged.
	saved, err := store.GetCompletion(context.Background(), "chatcmpl-json1")
	if err != nil {
		t.Fatalf("record not saved: %v", err)
	}
	if saved.Streamed || saved.Content != "hello back" || saved.TotalTokens != 8 {
		t.Errorf("record = %+v", saved)
	}
}

func TestCreateCompletion_InvalidJSON(t *testing.T) {
	p := &fakeProvider{completeFn: func(context.Context, *llm.Request) (*chat.CompletionResponse, error) {
		t.Fatal("provider must not be called")
		return nil, nil
	}}
	h := newTestHandler(t, p, nil)

	rec := postCompletion(t, h, `{not json`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var cerr chat.CompletionError
	json.Unmarshal(rec.Body.Bytes(), &cerr)
	if cerr.Detail.Type != chat.ErrorTypeInit {
		t.Errorf("error type = %q", cerr.Detail.Type)
	}
}

func TestCreateCompletion_UnsupportedMediaType(t *testing.T) {
	h := newTestHandler(t, &fakeProvider{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader("x"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCreateCompletion_MissingModel(t *testing.T) {
	p := &fakeProvider{}
	client, err := llm.NewWithProvider(p, chat.Options{})
	if err != nil {
		t.Fatalf("NewWithProvider: %v", err)
	}
	h := NewHandler(client, nil, HandlerConfig{})

	rec := postCompletion(t, h, `{"messages":[{"role":"user","content":"hi"}]}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var cerr chat.CompletionError
	json.Unmarshal(rec.Body.Bytes(), &cerr)
	if cerr.Detail.Type != chat.ErrorTypeMissingModel {
		t.Errorf("error type = %q", cerr.Detail.Type)
	}
}

func TestCreateCompletion_BackendErrorStatus(t *testing.T) {
	p := &fakeProvider{
		completeFn: func(context.Context, *llm.Request) (*chat.CompletionResponse, error) {
			return nil, chat.NewBackendError("backend rate limit exceeded", "http_429")
		},
	}
	h := newTestHandler(t, p, nil)

	rec := postCompletion(t, h, `{"messages":[{"role":"user","content":"hi"}]}`)

	// Upstream HTTP status passes through.
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
}

func TestCreateCompletion_ExtraPassthrough(t *testing.T) {
	var gotExtra map[string]any
	p := &fakeProvider{
		completeFn: func(_ context.Context, req *llm.Request) (*chat.CompletionResponse, error) {
			gotExtra = req.Extra
			return fixedResponse("chatcmpl-extra", "ok"), nil
		},
	}
	h := newTestHandler(t, p, nil)

	rec := postCompletion(t, h, `{"messages":[{"role":"user","content":"hi"}],"top_p":0.9,"seed":42}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	if gotExtra["top_p"] != 0.9 {
		t.Errorf("top_p = %v", gotExtra["top_p"])
	}
	if gotExtra["seed"] != float64(42) {
		t.Errorf("seed = %v", gotExtra["seed"])
	}
}

// parseSSE splits an SSE body into its data payloads.
func parseSSE(t *testing.T, body string) []string {
	t.Helper()
	var payloads []string
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if after, ok := strings.CutPrefix(line, "data: "); ok {
			payloads = append(payloads, after)
		}
	}
	return payloads
}

func TestCreateCompletion_Streaming(t *testing.T) {
	store := memory.New(0)
	p := &fakeStreamProvider{
		events: []llm.Event{
			{Type: llm.EventDelta, Delta: chat.StreamDelta{Content: chat.String("Hello")}},
			{Type: llm.EventDelta, Delta: chat.StreamDelta{Content: chat.String(" world")}},
			{Type: llm.EventDone, ID: "chatcmpl-stream1", FinishReason: "stop",
				Usage: &chat.Usage{PromptTokens: 2, CompletionTokens: 2, TotalTokens: 4}},
		},
	}
	h := newTestHandler(t, p, store)

	rec := postCompletion(t, h, `{"stream":true,"messages":[{"role":"user","content":"hi"}]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	payloads := parseSSE(t, rec.Body.String())
	// Two deltas, a terminal chunk, and the [DONE] sentinel.
	if len(payloads) != 4 {
		t.Fatalf("got %d payloads: %v", len(payloads), payloads)
	}
	if payloads[len(payloads)-1] != "[DONE]" {
		t.Errorf("last payload = %q, want [DONE]", payloads[len(payloads)-1])
	}

	var first completionChunk
	if err := json.Unmarshal([]byte(payloads[0]), &first); err != nil {
		t.Fatalf("decoding first chunk: %v", err)
	}
	if first.Object != ObjectChatCompletionChunk {
		t.Errorf("object = %q", first.Object)
	}
	if first.Choices[0].Delta.Text() != "Hello" {
		t.Errorf("first delta = %q", first.Choices[0].Delta.Text())
	}

	var terminal completionChunk
	if err := json.Unmarshal([]byte(payloads[2]), &terminal); err != nil {
		t.Fatalf("decoding terminal chunk: %v", err)
	}
	if terminal.Choices[0].FinishReason == nil || *terminal.Choices[0].FinishReason != chat.FinishReasonStop {
		t.Errorf("terminal finish_reason = %v", terminal.Choices[0].FinishReason)
	}
	if terminal.Usage == nil || terminal.Usage.TotalTokens != 4 {
		t.Errorf("terminal usage = %+v", terminal.Usage)
	}

	// The aggregated completion is logged with the full content.
	list, err := store.ListCompletions(context.Background(), storage.ListOptions{})
	if err != nil {
		t.Fatalf("ListCompletions: %v", err)
	}
	if len(list.Data) != 1 {
		t.Fatalf("logged %d records, want 1", len(list.Data))
	}
	if !list.Data[0].Streamed || list.Data[0].Content != "Hello world" {
		t.Errorf("record = %+v", list.Data[0])
	}
}

// gaugeStreamProvider samples the streaming gauge at the moment the
// upstream stream is opened, which is inside the handler's streaming path.
type gaugeStreamProvider struct {
	fakeStreamProvider
	sample func()
}

func (g *gaugeStreamProvider) Stream(ctx context.Context, req *llm.Request) (<-chan llm.Event, error) {
	g.sample()
	return g.fakeStreamProvider.Stream(ctx, req)
}

// streamingGauge reads the current streaming connections gauge value.
func streamingGauge(t *testing.T) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := observability.StreamingConnections.Write(m); err != nil {
		t.Fatalf("writing gauge metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestCreateCompletion_StreamingGauge(t *testing.T) {
	baseline := streamingGauge(t)

	var during float64
	p := &gaugeStreamProvider{
		fakeStreamProvider: fakeStreamProvider{
			events: []llm.Event{
				{Type: llm.EventDelta, Delta: chat.StreamDelta{Content: chat.String("hi")}},
				{Type: llm.EventDone, ID: "chatcmpl-gauge1", FinishReason: "stop"},
			},
		},
		sample: func() { during = streamingGauge(t) },
	}
	h := newTestHandler(t, p, nil)

	rec := postCompletion(t, h, `{"stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Streaming is selected by the body, with no Accept header set; the
	// gauge must still track the in-flight stream.
	if during != baseline+1 {
		t.Errorf("gauge during stream = %f, want %f", during, baseline+1)
	}
	if after := streamingGauge(t); after != baseline {
		t.Errorf("gauge after stream = %f, want %f", after, baseline)
	}
}

func TestCreateCompletion_StreamingMidStreamError(t *testing.T) {
	p := &fakeStreamProvider{
		events: []llm.Event{
			{Type: llm.EventDelta, Delta: chat.StreamDelta{Content: chat.String("partial")}},
			{Type: llm.EventError, Err: chat.NewBackendError("upstream reset", "stream_read_error")},
		},
	}
	h := newTestHandler(t, p, nil)

	rec := postCompletion(t, h, `{"stream":true,"messages":[{"role":"user","content":"hi"}]}`)

	// Streaming started, so the failure is reported in-band.
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	payloads := parseSSE(t, rec.Body.String())
	if len(payloads) != 2 {
		t.Fatalf("got %d payloads: %v", len(payloads), payloads)
	}

	// Delivered delta stands.
	var first completionChunk
	json.Unmarshal([]byte(payloads[0]), &first)
	if first.Choices[0].Delta.Text() != "partial" {
		t.Errorf("first delta = %q", first.Choices[0].Delta.Text())
	}

	// Error frame, no [DONE].
	var cerr chat.CompletionError
	if err := json.Unmarshal([]byte(payloads[1]), &cerr); err != nil {
		t.Fatalf("decoding error frame: %v", err)
	}
	if cerr.Detail.Type != chat.ErrorTypeBackend {
		t.Errorf("error type = %q", cerr.Detail.Type)
	}
	if strings.Contains(rec.Body.String(), "[DONE]") {
		t.Error("interrupted stream must not send [DONE]")
	}
}

func TestCreateCompletion_StreamingNotSupported(t *testing.T) {
	h := newTestHandler(t, &fakeProvider{name: "fake"}, nil)

	rec := postCompletion(t, h, `{"stream":true,"messages":[{"role":"user","content":"hi"}]}`)

	// Capability failure happens before any SSE frame.
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var cerr chat.CompletionError
	json.Unmarshal(rec.Body.Bytes(), &cerr)
	if cerr.Detail.Type != chat.ErrorTypeCapability {
		t.Errorf("error type = %q", cerr.Detail.Type)
	}
	if cerr.Detail.Message != "Streaming is not supported by the fake provider." {
		t.Errorf("message = %q", cerr.Detail.Message)
	}
}

func TestGetCompletion(t *testing.T) {
	store := memory.New(0)
	store.SaveCompletion(context.Background(), &storage.Record{
		ID: "chatcmpl-abc", Provider: "fake", Model: "test-model",
		Created: 100, Content: "stored", FinishReason: "stop",
	})
	h := newTestHandler(t, &fakeProvider{}, store)

	req := httptest.NewRequest(http.MethodGet, "/v1/chat/completions/chatcmpl-abc", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got storage.Record
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.ID != "chatcmpl-abc" || got.Content != "stored" {
		t.Errorf("record = %+v", got)
	}
}

func TestGetCompletion_NotFound(t *testing.T) {
	h := newTestHandler(t, &fakeProvider{}, memory.New(0))

	req := httptest.NewRequest(http.MethodGet, "/v1/chat/completions/chatcmpl-missing", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetCompletion_MalformedID(t *testing.T) {
	h := newTestHandler(t, &fakeProvider{}, memory.New(0))

	req := httptest.NewRequest(http.MethodGet, "/v1/chat/completions/not-a-completion", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetCompletion_NoStore(t *testing.T) {
	h := newTestHandler(t, &fakeProvider{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/chat/completions/chatcmpl-abc", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestListCompletions(t *testing.T) {
	store := memory.New(0)
	for i, id := range []string{"chatcmpl-a", "chatcmpl-b", "chatcmpl-c"} {
		store.SaveCompletion(context.Background(), &storage.Record{
			ID: id, Provider: "fake", Model: "test-model", Created: int64(i + 1),
		})
	}
	h := newTestHandler(t, &fakeProvider{}, store)

	req := httptest.NewRequest(http.MethodGet, "/v1/chat/completions?limit=2", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var list storage.RecordList
	json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list.Data) != 2 || !list.HasMore {
		t.Errorf("list = %+v", list)
	}
	if list.Data[0].ID != "chatcmpl-c" {
		t.Errorf("first = %q, want newest", list.Data[0].ID)
	}
}

func TestListCompletions_BadOrder(t *testing.T) {
	h := newTestHandler(t, &fakeProvider{}, memory.New(0))

	req := httptest.NewRequest(http.MethodGet, "/v1/chat/completions?order=sideways", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	h := newTestHandler(t, &fakeProvider{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestReadyz_StoreDown(t *testing.T) {
	h := newTestHandler(t, &fakeProvider{}, failingStore{})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

// failingStore reports an unreachable backing store.
type failingStore struct{}

func (failingStore) SaveCompletion(context.Context, *storage.Record) error { return nil }
func (failingStore) GetCompletion(context.Context, string) (*storage.Record, error) {
	return nil, storage.ErrNotFound
}
func (failingStore) ListCompletions(context.Context, storage.ListOptions) (*storage.RecordList, error) {
	return &storage.RecordList{Object: "list", Data: []*storage.Record{}}, nil
}
func (failingStore) HealthCheck(context.Context) error {
	return context.DeadlineExceeded
}
func (failingStore) Close() error { return nil }
