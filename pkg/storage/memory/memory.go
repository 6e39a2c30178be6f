// Package memory provides an in-memory implementation of storage.Store
// for testing and lightweight deployments. Records are stored in memory
// and lost when the process restarts. Optional LRU eviction limits memory
// usage.
package memory

import (
	"container/list"
	"context"
	"sort"
	"sync"

	"github.com/parley-llm/parley/pkg/storage"
)

// entry holds a stored record and its LRU position.
type entry struct {
	rec     *storage.Record
	lruElem *list.Element
}

// Store is an in-memory completion log with optional LRU eviction.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	lruList *list.List // front = most recently used, back = least recently used
	maxSize int        // 0 = unlimited
}

// Ensure Store implements storage.Store at compile time.
var _ storage.Store = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. If maxSize > 0, the oldest entry is evicted when the
// limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// SaveCompletion persists a record in memory.
func (s *Store) SaveCompletion(_ context.Context, rec *storage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[rec.ID]; exists {
		return storage.ErrConflict
	}

	// Evict if at capacity.
	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	elem := s.lruList.PushFront(rec.ID)
	s.entries[rec.ID] = &entry{
		rec:     rec,
		lruElem: elem,
	}

	return nil
}

// GetCompletion retrieves a record by ID. Returns ErrNotFound if the
// record does not exist.
func (s *Store) GetCompletion(_ context.Context, id string) (*storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, storage.ErrNotFound
	}

	// Reading refreshes recency.
	s.lruList.MoveToFront(e.lruElem)

	return e.rec, nil
}

// ListCompletions returns a paginated list of stored records filtered
// optionally by model, with cursor-based pagination.
func (s *Store) ListCompletions(_ context.Context, opts storage.ListOptions) (*storage.RecordList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Collect matching entries.
	var matches []*storage.Record
	for _, e := range s.entries {
		if opts.Model != "" && e.rec.Model != opts.Model {
			continue
		}
		matches = append(matches, e.rec)
	}

	// Sort by created. Default is desc (newest first); ties break by ID
	// so pagination is stable.
	asc := opts.Order == "asc"
	sort.Slice(matches, func(i, j int) bool {
		if asc {
			if matches[i].Created != matches[j].Created {
				return matches[i].Created < matches[j].Created
			}
			return matches[i].ID < matches[j].ID
		}
		if matches[i].Created != matches[j].Created {
			return matches[i].Created > matches[j].Created
		}
		return matches[i].ID > matches[j].ID
	})

	// Apply cursor-based pagination.
	if opts.After != "" {
		idx := -1
		for i, r := range matches {
			if r.ID == opts.After {
				idx = i
				break
			}
		}
		if idx >= 0 {
			matches = matches[idx+1:]
		} else {
			matches = nil
		}
	}

	// Apply limit.
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	hasMore := len(matches) > limit
	if hasMore {
		matches = matches[:limit]
	}

	result := &storage.RecordList{
		Object:  "list",
		Data:    matches,
		HasMore: hasMore,
	}
	if len(matches) > 0 {
		result.FirstID = matches[0].ID
		result.LastID = matches[len(matches)-1].ID
	}
	if result.Data == nil {
		result.Data = []*storage.Record{}
	}

	return result, nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// evictOldest removes the least recently used entry.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}

	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, id)
}
