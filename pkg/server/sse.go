package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/parley-llm/parley/pkg/chat"
)

// chunkWriter emits SSE frames for a streamed completion. Headers are
// written lazily on the first frame so that failures before any delta
// can still produce a plain JSON error response.
type chunkWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newChunkWriter(w http.ResponseWriter) *chunkWriter {
	return &chunkWriter{
		w:  w,
		rc: http.NewResponseController(w),
	}
}

// Started reports whether any SSE frame has been written. Once true,
// the HTTP status and headers are committed.
func (c *chunkWriter) Started() bool {
	return c.started
}

// WriteChunk writes one chunk as an SSE data frame and flushes it.
func (c *chunkWriter) WriteChunk(chunk completionChunk) error {
	c.ensureHeaders()

	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshaling chunk: %w", err)
	}
	if _, err := fmt.Fprintf(c.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("writing chunk: %w", err)
	}
	return c.rc.Flush()
}

// WriteError writes a mid-stream failure as an SSE data frame. Deltas
// already sent stand; the error frame tells the client the stream did
// not finish cleanly.
func (c *chunkWriter) WriteError(cerr *chat.CompletionError) error {
	c.ensureHeaders()

	data, err := json.Marshal(cerr)
	if err != nil {
		return fmt.Errorf("marshaling error frame: %w", err)
	}
	if _, err := fmt.Fprintf(c.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("writing error frame: %w", err)
	}
	return c.rc.Flush()
}

// WriteDone writes the [DONE] sentinel that terminates a clean stream.
func (c *chunkWriter) WriteDone() error {
	c.ensureHeaders()

	if _, err := fmt.Fprint(c.w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("writing [DONE]: %w", err)
	}
	return c.rc.Flush()
}

func (c *chunkWriter) ensureHeaders() {
	if c.started {
		return
	}
	c.started = true
	c.w.Header().Set("Content-Type", "text/event-stream")
	c.w.Header().Set("Cache-Control", "no-cache")
	c.w.Header().Set("Connection", "keep-alive")
}
