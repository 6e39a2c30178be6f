package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/parley-llm/parley/pkg/auth"
	"github.com/parley-llm/parley/pkg/chat"
	"github.com/parley-llm/parley/pkg/llm"
	"github.com/parley-llm/parley/pkg/observability"
	"github.com/parley-llm/parley/pkg/storage"
)

// Handler serves the chat completions API. The completion log store is
// optional; when nil, retrieval and listing endpoints report the
// operation as unavailable.
type Handler struct {
	client      *llm.Client
	store       storage.Store
	mux         *http.ServeMux
	maxBodySize int64
}

// HandlerConfig holds per-handler settings.
type HandlerConfig struct {
	// MaxBodySize caps request bodies (default: 10 MB).
	MaxBodySize int64
}

// NewHandler creates a Handler dispatching to the given client.
func NewHandler(client *llm.Client, store storage.Store, cfg HandlerConfig) *Handler {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = 10 << 20
	}

	h := &Handler{
		client:      client,
		store:       store,
		mux:         http.NewServeMux(),
		maxBodySize: cfg.MaxBodySize,
	}

	h.mux.HandleFunc("POST /v1/chat/completions", h.handleCreateCompletion)
	h.mux.HandleFunc("GET /v1/chat/completions/{id}", h.handleGetCompletion)
	h.mux.HandleFunc("GET /v1/chat/completions", h.handleListCompletions)
	h.mux.HandleFunc("GET /healthz", h.handleHealthz)
	h.mux.HandleFunc("GET /readyz", h.handleReadyz)

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// handleCreateCompletion handles POST /v1/chat/completions for both the
// JSON and the SSE streaming path.
func (h *Handler) handleCreateCompletion(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" {
		WriteErrorResponse(w,
			chat.NewInitError("Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			WriteErrorResponse(w,
				chat.NewInitError(fmt.Sprintf("request body too large (max %d bytes)", h.maxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		WriteErrorResponse(w,
			chat.NewInitError("invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}

	if req.Stream {
		h.serveStreaming(w, r, &req)
		return
	}

	h.serveJSON(w, r, &req)
}

// serveJSON runs the non-streaming completion path.
func (h *Handler) serveJSON(w http.ResponseWriter, r *http.Request, req *completionRequest) {
	start := time.Now()

	resp, err := h.client.Complete(r.Context(), req.Messages, req.options())
	h.observeCall(req.Model, err, time.Since(start), resp)

	if err != nil {
		WriteCompletionError(w, chat.AsCompletionError(err))
		return
	}

	h.record(r.Context(), resp, false)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// serveStreaming runs the SSE streaming path. Deltas are written as
// chat.completion.chunk frames as they arrive; the terminal frame
// carries the finish reason and usage, followed by the [DONE] sentinel.
func (h *Handler) serveStreaming(w http.ResponseWriter, r *http.Request, req *completionRequest) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Streaming is selected by the request body, so the gauge is tracked
	// here rather than in HTTP middleware.
	observability.StreamingConnections.Inc()
	defer observability.StreamingConnections.Dec()

	start := time.Now()
	streamID := chat.NewCompletionID()
	created := time.Now().Unix()
	model := req.Model
	if model == "" {
		model = h.client.DefaultModel()
	}

	cw := newChunkWriter(w)

	// A write failure means the client went away; cancel the upstream
	// stream instead of pumping deltas nobody reads.
	var writeErr error
	sink := func(d chat.StreamDelta) {
		if writeErr != nil {
			return
		}
		writeErr = cw.WriteChunk(completionChunk{
			ID:      streamID,
			Object:  ObjectChatCompletionChunk,
			Created: created,
			Model:   model,
			Choices: []chunkChoice{{Index: 0, Delta: d}},
		})
		if writeErr != nil {
			cancel()
		}
	}

	resp, err := h.client.CompleteStreaming(ctx, req.Messages, sink, req.options())
	h.observeCall(model, err, time.Since(start), resp)

	if err != nil {
		cerr := chat.AsCompletionError(err)
		if cw.Started() {
			// Deltas already delivered stand; report the failure in-band.
			cw.WriteError(cerr)
			return
		}
		WriteCompletionError(w, cerr)
		return
	}

	if writeErr != nil {
		slog.Debug("streaming client disconnected", "id", streamID, "error", writeErr.Error())
		return
	}

	reason := resp.FinishReason()
	final := completionChunk{
		ID:      streamID,
		Object:  ObjectChatCompletionChunk,
		Created: created,
		Model:   model,
		Choices: []chunkChoice{{Index: 0, FinishReason: &reason}},
		Usage:   resp.Usage,
	}
	if err := cw.WriteChunk(final); err != nil {
		return
	}
	cw.WriteDone()

	h.record(r.Context(), resp, true)
}

// handleGetCompletion handles GET /v1/chat/completions/{id}.
func (h *Handler) handleGetCompletion(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		WriteErrorResponse(w,
			chat.NewInitError("completion retrieval is not available (no store configured)"),
			http.StatusNotImplemented,
		)
		return
	}

	// Backend-issued IDs are opaque, so only the prefix is checked here.
	id := r.PathValue("id")
	if !strings.HasPrefix(id, "chatcmpl-") {
		WriteErrorResponse(w,
			chat.NewInitError("malformed completion ID"),
			http.StatusBadRequest,
		)
		return
	}

	rec, err := h.store.GetCompletion(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			WriteErrorResponse(w,
				chat.NewBackendError("completion "+id+" not found", "not_found"),
				http.StatusNotFound,
			)
			return
		}
		WriteErrorResponse(w, chat.AsCompletionError(err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

// handleListCompletions handles GET /v1/chat/completions.
func (h *Handler) handleListCompletions(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		WriteErrorResponse(w,
			chat.NewInitError("completion listing is not available (no store configured)"),
			http.StatusNotImplemented,
		)
		return
	}

	opts, perr := parseListOptions(r)
	if perr != nil {
		WriteErrorResponse(w, perr, http.StatusBadRequest)
		return
	}

	result, err := h.store.ListCompletions(r.Context(), opts)
	if err != nil {
		WriteErrorResponse(w, chat.AsCompletionError(err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// handleHealthz reports process liveness.
func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz reports readiness, including store connectivity.
func (h *Handler) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.HealthCheck(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"unavailable","error":%q}`, err.Error())
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// parseListOptions extracts pagination parameters from the query string.
func parseListOptions(r *http.Request) (storage.ListOptions, *chat.CompletionError) {
	q := r.URL.Query()
	opts := storage.ListOptions{
		After: q.Get("after"),
		Model: q.Get("model"),
		Order: q.Get("order"),
	}

	if opts.Order != "" && opts.Order != "asc" && opts.Order != "desc" {
		return opts, chat.NewInitError("order must be 'asc' or 'desc'")
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return opts, chat.NewInitError("limit must be a positive integer")
		}
		opts.Limit = limit
	}

	return opts, nil
}

// observeCall records provider-level metrics for one dispatch.
func (h *Handler) observeCall(model string, err error, elapsed time.Duration, resp *chat.CompletionResponse) {
	if model == "" {
		model = h.client.DefaultModel()
	}
	if model == "" {
		model = "unknown"
	}

	status := "success"
	if err != nil {
		status = "error"
	}

	var in, out int
	if resp != nil && resp.Usage != nil {
		in = resp.Usage.PromptTokens
		out = resp.Usage.CompletionTokens
	}

	observability.ObserveProviderCall(h.client.Provider(), model, status, elapsed.Seconds(), in, out)
}

// record persists a finished completion to the log. Failures are logged
// and never surfaced to the client; the completion already succeeded.
func (h *Handler) record(ctx context.Context, resp *chat.CompletionResponse, streamed bool) {
	if h.store == nil {
		return
	}

	var subject string
	if id := auth.IdentityFromContext(ctx); id != nil {
		subject = id.Subject
	}

	rec := &storage.Record{
		ID:           resp.ID,
		Provider:     h.client.Provider(),
		Model:        resp.Model,
		Subject:      subject,
		Created:      resp.Created,
		Streamed:     streamed,
		Content:      resp.Text(),
		FinishReason: resp.FinishReason(),
	}
	if resp.Usage != nil {
		rec.PromptTokens = resp.Usage.PromptTokens
		rec.CompletionTokens = resp.Usage.CompletionTokens
		rec.TotalTokens = resp.Usage.TotalTokens
	}

	if err := h.store.SaveCompletion(ctx, rec); err != nil && !errors.Is(err, storage.ErrConflict) {
		slog.Warn("saving completion failed", "id", resp.ID, "error", err.Error())
	}
}
