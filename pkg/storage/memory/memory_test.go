package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/parley-llm/parley/pkg/storage"
)

func record(id string, created int64) *storage.Record {
	return &storage.Record{
		ID:           id,
		Provider:     "openai",
		Model:        "gpt-4",
		Created:      created,
		Content:      "hello",
		FinishReason: "stop",
	}
}

func TestSaveAndGet(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	rec := record("chatcmpl-1", 100)
	if err := s.SaveCompletion(ctx, rec); err != nil {
		t.Fatalf("SaveCompletion: %v", err)
	}

	got, err := s.GetCompletion(ctx, "chatcmpl-1")
	if err != nil {
		t.Fatalf("GetCompletion: %v", err)
	}
	if got.Content != "hello" || got.Model != "gpt-4" {
		t.Errorf("got %+v", got)
	}
}

func TestSaveDuplicate_Conflict(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	if err := s.SaveCompletion(ctx, record("chatcmpl-1", 100)); err != nil {
		t.Fatalf("first save: %v", err)
	}
	err := s.SaveCompletion(ctx, record("chatcmpl-1", 200))
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("duplicate save error = %v, want ErrConflict", err)
	}
}

func TestGetMissing_NotFound(t *testing.T) {
	s := New(0)

	_, err := s.GetCompletion(context.Background(), "chatcmpl-missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestLRUEviction(t *testing.T) {
	s := New(2)
	ctx := context.Background()

	s.SaveCompletion(ctx, record("chatcmpl-a", 1))
	s.SaveCompletion(ctx, record("chatcmpl-b", 2))

	// Touch a so b becomes the eviction candidate.
	if _, err := s.GetCompletion(ctx, "chatcmpl-a"); err != nil {
		t.Fatalf("GetCompletion: %v", err)
	}

	s.SaveCompletion(ctx, record("chatcmpl-c", 3))

	if _, err := s.GetCompletion(ctx, "chatcmpl-b"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected b evicted, got err = %v", err)
	}
	if _, err := s.GetCompletion(ctx, "chatcmpl-a"); err != nil {
		t.Errorf("expected a retained, got err = %v", err)
	}
	if _, err := s.GetCompletion(ctx, "chatcmpl-c"); err != nil {
		t.Errorf("expected c present, got err = %v", err)
	}
}

func TestListDefaultOrder(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		s.SaveCompletion(ctx, record(fmt.Sprintf("chatcmpl-%d", i), int64(i*100)))
	}

	list, err := s.ListCompletions(ctx, storage.ListOptions{})
	if err != nil {
		t.Fatalf("ListCompletions: %v", err)
	}

	if list.Object != "list" {
		t.Errorf("object = %q", list.Object)
	}
	if len(list.Data) != 3 {
		t.Fatalf("len = %d, want 3", len(list.Data))
	}
	// Default is newest first.
	if list.Data[0].ID != "chatcmpl-3" || list.Data[2].ID != "chatcmpl-1" {
		t.Errorf("order = [%s %s %s], want newest first", list.Data[0].ID, list.Data[1].ID, list.Data[2].ID)
	}
	if list.FirstID != "chatcmpl-3" || list.LastID != "chatcmpl-1" {
		t.Errorf("first/last = %s/%s", list.FirstID, list.LastID)
	}
	if list.HasMore {
		t.Error("has_more = true, want false")
	}
}

func TestListAscending(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	s.SaveCompletion(ctx, record("chatcmpl-old", 100))
	s.SaveCompletion(ctx, record("chatcmpl-new", 200))

	list, err := s.ListCompletions(ctx, storage.ListOptions{Order: "asc"})
	if err != nil {
		t.Fatalf("ListCompletions: %v", err)
	}
	if list.Data[0].ID != "chatcmpl-old" {
		t.Errorf("first = %s, want oldest", list.Data[0].ID)
	}
}

func TestListModelFilter(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	a := record("chatcmpl-a", 100)
	b := record("chatcmpl-b", 200)
	b.Model = "gpt-4o-mini"
	s.SaveCompletion(ctx, a)
	s.SaveCompletion(ctx, b)

	list, err := s.ListCompletions(ctx, storage.ListOptions{Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("ListCompletions: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].ID != "chatcmpl-b" {
		t.Errorf("filtered data = %+v", list.Data)
	}
}

func TestListPagination(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		s.SaveCompletion(ctx, record(fmt.Sprintf("chatcmpl-%d", i), int64(i*100)))
	}

	// First page of 2 (newest first: 5, 4).
	page1, err := s.ListCompletions(ctx, storage.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page1.Data) != 2 || !page1.HasMore {
		t.Fatalf("page 1 = %d records, has_more=%v", len(page1.Data), page1.HasMore)
	}
	if page1.Data[0].ID != "chatcmpl-5" || page1.Data[1].ID != "chatcmpl-4" {
		t.Errorf("page 1 = [%s %s]", page1.Data[0].ID, page1.Data[1].ID)
	}

	// Second page via cursor.
	page2, err := s.ListCompletions(ctx, storage.ListOptions{Limit: 2, After: page1.LastID})
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page2.Data) != 2 || page2.Data[0].ID != "chatcmpl-3" {
		t.Errorf("page 2 = %+v", page2.Data)
	}

	// Unknown cursor yields an empty page.
	empty, err := s.ListCompletions(ctx, storage.ListOptions{After: "chatcmpl-nope"})
	if err != nil {
		t.Fatalf("unknown cursor: %v", err)
	}
	if len(empty.Data) != 0 || empty.HasMore {
		t.Errorf("unknown cursor page = %+v", empty)
	}
}

func TestHealthCheckAndClose(t *testing.T) {
	s := New(0)
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
