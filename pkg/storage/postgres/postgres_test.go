package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/parley-llm/parley/pkg/storage"
)

func init() {
	// Configure testcontainers to use podman.
	// Detect the podman socket from `podman machine inspect`.
	if os.Getenv("DOCKER_HOST") == "" {
		out, err := exec.Command("podman", "machine", "inspect", "--format", "{{.ConnectionInfo.PodmanSocket.Path}}").Output()
		if err == nil {
			sock := strings.TrimSpace(string(out))
			if sock != "" {
				os.Setenv("DOCKER_HOST", "unix://"+sock)
			}
		}
	}
	// Ryuk needs privileged mode with podman.
	if os.Getenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
	}
}

// setupTestDB starts a PostgreSQL container and returns a connected Store.
// Tests are skipped if no container runtime is available.
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}

	if _, err := exec.LookPath("podman"); err != nil {
		t.Skip("podman not found, skipping integration tests")
	}

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("parley_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container (is podman running?): %v", err)
	}

	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	store, err := New(ctx, Config{
		DSN:            connStr,
		MaxConns:       5,
		MinConns:       1,
		MigrateOnStart: true,
	})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func makeTestRecord(id string, created int64) *storage.Record {
	return &storage.Record{
		ID:               id,
		Provider:         "openai",
		Model:            "gpt-4",
		Subject:          "svc-tests",
		Created:          created,
		Content:          "hi there",
		FinishReason:     "stop",
		PromptTokens:     5,
		CompletionTokens: 3,
		TotalTokens:      8,
	}
}

func TestPostgres_SaveAndGet(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	rec := makeTestRecord(fmt.Sprintf("chatcmpl-pg-%d", time.Now().UnixNano()), time.Now().Unix())
	if err := store.SaveCompletion(ctx, rec); err != nil {
		t.Fatalf("SaveCompletion failed: %v", err)
	}

	got, err := store.GetCompletion(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetCompletion failed: %v", err)
	}

	if got.ID != rec.ID {
		t.Errorf("ID = %q, want %q", got.ID, rec.ID)
	}
	if got.Model != "gpt-4" || got.Provider != "openai" {
		t.Errorf("provider/model = %q/%q", got.Provider, got.Model)
	}
	if got.Subject != "svc-tests" {
		t.Errorf("Subject = %q, want %q", got.Subject, "svc-tests")
	}
	if got.Content != "hi there" || got.FinishReason != "stop" {
		t.Errorf("content/finish = %q/%q", got.Content, got.FinishReason)
	}
	if got.TotalTokens != 8 {
		t.Errorf("TotalTokens = %d, want 8", got.TotalTokens)
	}
}

func TestPostgres_EmptySubjectRoundTrips(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	rec := makeTestRecord(fmt.Sprintf("chatcmpl-pg-anon-%d", time.Now().UnixNano()), time.Now().Unix())
	rec.Subject = ""
	if err := store.SaveCompletion(ctx, rec); err != nil {
		t.Fatalf("SaveCompletion failed: %v", err)
	}

	got, err := store.GetCompletion(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetCompletion failed: %v", err)
	}
	if got.Subject != "" {
		t.Errorf("Subject = %q, want empty", got.Subject)
	}
}

func TestPostgres_GetNotFound(t *testing.T) {
	store := setupTestDB(t)

	_, err := store.GetCompletion(context.Background(), "chatcmpl-nonexistent")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgres_DuplicateSave(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	rec := makeTestRecord(fmt.Sprintf("chatcmpl-pg-dup-%d", time.Now().UnixNano()), time.Now().Unix())
	store.SaveCompletion(ctx, rec)

	err := store.SaveCompletion(ctx, rec)
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestPostgres_List(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	base := time.Now().UnixNano()
	for i := 1; i <= 5; i++ {
		rec := makeTestRecord(fmt.Sprintf("chatcmpl-pg-list-%d-%d", base, i), int64(i))
		if i == 3 {
			rec.Model = "gpt-4o-mini"
		}
		if err := store.SaveCompletion(ctx, rec); err != nil {
			t.Fatalf("SaveCompletion %d: %v", i, err)
		}
	}

	// Default order is newest first.
	page1, err := store.ListCompletions(ctx, storage.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("ListCompletions failed: %v", err)
	}
	if len(page1.Data) != 2 || !page1.HasMore {
		t.Fatalf("page 1 = %d records, has_more=%v", len(page1.Data), page1.HasMore)
	}
	if page1.Data[0].Created < page1.Data[1].Created {
		t.Errorf("expected newest first, got created %d then %d", page1.Data[0].Created, page1.Data[1].Created)
	}

	// Cursor pagination continues past the last record of the page.
	page2, err := store.ListCompletions(ctx, storage.ListOptions{Limit: 2, After: page1.LastID})
	if err != nil {
		t.Fatalf("page 2 failed: %v", err)
	}
	if len(page2.Data) != 2 {
		t.Fatalf("page 2 = %d records, want 2", len(page2.Data))
	}
	if page2.Data[0].Created > page1.Data[1].Created {
		t.Errorf("page 2 should continue past page 1")
	}

	// Model filter.
	filtered, err := store.ListCompletions(ctx, storage.ListOptions{Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("filtered list failed: %v", err)
	}
	for _, r := range filtered.Data {
		if r.Model != "gpt-4o-mini" {
			t.Errorf("filter leaked model %q", r.Model)
		}
	}

	// Unknown cursor yields an empty page.
	empty, err := store.ListCompletions(ctx, storage.ListOptions{After: "chatcmpl-nope"})
	if err != nil {
		t.Fatalf("unknown cursor failed: %v", err)
	}
	if len(empty.Data) != 0 || empty.HasMore {
		t.Errorf("unknown cursor page = %+v", empty)
	}
}

func TestPostgres_ListAscending(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	base := time.Now().UnixNano()
	store.SaveCompletion(ctx, makeTestRecord(fmt.Sprintf("chatcmpl-pg-asc-a-%d", base), 100))
	store.SaveCompletion(ctx, makeTestRecord(fmt.Sprintf("chatcmpl-pg-asc-b-%d", base), 200))

	list, err := store.ListCompletions(ctx, storage.ListOptions{Order: "asc", Limit: 100})
	if err != nil {
		t.Fatalf("ListCompletions failed: %v", err)
	}
	for i := 1; i < len(list.Data); i++ {
		if list.Data[i-1].Created > list.Data[i].Created {
			t.Fatalf("ascending order violated at index %d", i)
		}
	}
}

func TestPostgres_HealthCheck(t *testing.T) {
	store := setupTestDB(t)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestPostgres_MigrationsIdempotent(t *testing.T) {
	store := setupTestDB(t)

	// Re-running migrations against an already-migrated schema is a no-op.
	if err := store.migrate(context.Background()); err != nil {
		t.Errorf("second migrate failed: %v", err)
	}
}
