package storage

import (
	"context"
)

// Record is one logged completion call. Both the non-streaming path and
// the post-stream aggregate are recorded in the same shape.
type Record struct {
	// ID is the completion ID ("chatcmpl-..." or a backend-issued ID).
	ID string `json:"id"`

	// Provider is the provider that served the call.
	Provider string `json:"provider"`

	// Model is the effective model after default resolution.
	Model string `json:"model"`

	// Subject is the authenticated caller, or "" when auth is disabled.
	Subject string `json:"subject,omitempty"`

	// Created is the completion creation time as a Unix timestamp.
	Created int64 `json:"created"`

	// Streamed marks completions served through the streaming path.
	Streamed bool `json:"streamed"`

	// Content is the final assistant message content.
	Content string `json:"content"`

	// FinishReason is the normalized finish reason ("stop" or "length").
	FinishReason string `json:"finish_reason"`

	// Token accounting, zero when the backend did not report usage.
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ListOptions controls completion listing.
type ListOptions struct {
	// Limit caps the page size. Defaults to 20, maximum 100.
	Limit int

	// After is a cursor: only records after this completion ID (in the
	// requested order) are returned.
	After string

	// Model filters by effective model when non-empty.
	Model string

	// Order is "asc" or "desc" by creation time. Default is "desc".
	Order string
}

// RecordList is one page of completion records.
type RecordList struct {
	Object  string    `json:"object"` // always "list"
	Data    []*Record `json:"data"`
	FirstID string    `json:"first_id,omitempty"`
	LastID  string    `json:"last_id,omitempty"`
	HasMore bool      `json:"has_more"`
}

// Store is the completion log interface.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// SaveCompletion persists a record. Returns ErrConflict when a record
	// with the same ID already exists.
	SaveCompletion(ctx context.Context, rec *Record) error

	// GetCompletion retrieves a record by ID. Returns ErrNotFound when
	// the record does not exist.
	GetCompletion(ctx context.Context, id string) (*Record, error)

	// ListCompletions returns a paginated list of records.
	ListCompletions(ctx context.Context, opts ListOptions) (*RecordList, error)

	// HealthCheck verifies the backing store is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases store resources.
	Close() error
}
