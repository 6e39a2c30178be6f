// Package postgres provides a PostgreSQL implementation of storage.Store.
// It uses pgx/v5 for connection pooling and applies embedded schema
// migrations on startup when configured to do so.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parley-llm/parley/pkg/storage"
)

// Store is a PostgreSQL-backed completion log.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements storage.Store at compile time.
var _ storage.Store = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// SaveCompletion persists a completion record.
func (s *Store) SaveCompletion(ctx context.Context, rec *storage.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO completions (
			id, provider, model, subject, created, streamed,
			content, finish_reason,
			prompt_tokens, completion_tokens, total_tokens
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		rec.ID, rec.Provider, rec.Model, nullString(rec.Subject),
		rec.Created, rec.Streamed,
		rec.Content, rec.FinishReason,
		rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens,
	)

	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting completion: %w", err)
	}

	return nil
}

// GetCompletion retrieves a completion record by ID.
func (s *Store) GetCompletion(ctx context.Context, id string) (*storage.Record, error) {
	var rec storage.Record
	var subject *string

	err := s.pool.QueryRow(ctx, `
		SELECT id, provider, model, subject, created, streamed,
		       content, finish_reason,
		       prompt_tokens, completion_tokens, total_tokens
		FROM completions
		WHERE id = $1
	`, id).Scan(
		&rec.ID, &rec.Provider, &rec.Model, &subject, &rec.Created, &rec.Streamed,
		&rec.Content, &rec.FinishReason,
		&rec.PromptTokens, &rec.CompletionTokens, &rec.TotalTokens,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying completion: %w", err)
	}

	if subject != nil {
		rec.Subject = *subject
	}

	return &rec, nil
}

// ListCompletions returns a paginated page of completion records.
func (s *Store) ListCompletions(ctx context.Context, opts storage.ListOptions) (*storage.RecordList, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	dir := "DESC"
	if opts.Order == "asc" {
		dir = "ASC"
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT id, provider, model, subject, created, streamed,
		       content, finish_reason,
		       prompt_tokens, completion_tokens, total_tokens
		FROM completions
	`)

	var conds []string
	var args []any

	if opts.Model != "" {
		args = append(args, opts.Model)
		conds = append(conds, fmt.Sprintf("model = $%d", len(args)))
	}

	// Cursor: seek past the row the cursor names, in the requested order.
	if opts.After != "" {
		cursor, err := s.GetCompletion(ctx, opts.After)
		if errors.Is(err, storage.ErrNotFound) {
			return &storage.RecordList{Object: "list", Data: []*storage.Record{}}, nil
		}
		if err != nil {
			return nil, err
		}
		args = append(args, cursor.Created, cursor.ID)
		op := "<"
		if dir == "ASC" {
			op = ">"
		}
		conds = append(conds, fmt.Sprintf("(created, id) %s ($%d, $%d)", op, len(args)-1, len(args)))
	}

	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}

	// Fetch one extra row to determine has_more.
	args = append(args, limit+1)
	sb.WriteString(fmt.Sprintf(" ORDER BY created %s, id %s LIMIT $%d", dir, dir, len(args)))

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("listing completions: %w", err)
	}
	defer rows.Close()

	var records []*storage.Record
	for rows.Next() {
		var rec storage.Record
		var subject *string
		if err := rows.Scan(
			&rec.ID, &rec.Provider, &rec.Model, &subject, &rec.Created, &rec.Streamed,
			&rec.Content, &rec.FinishReason,
			&rec.PromptTokens, &rec.CompletionTokens, &rec.TotalTokens,
		); err != nil {
			return nil, fmt.Errorf("scanning completion: %w", err)
		}
		if subject != nil {
			rec.Subject = *subject
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating completions: %w", err)
	}

	hasMore := len(records) > limit
	if hasMore {
		records = records[:limit]
	}

	result := &storage.RecordList{
		Object:  "list",
		Data:    records,
		HasMore: hasMore,
	}
	if len(records) > 0 {
		result.FirstID = records[0].ID
		result.LastID = records[len(records)-1].ID
	}
	if result.Data == nil {
		result.Data = []*storage.Record{}
	}

	return result, nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// nullString converts an empty string to nil for nullable TEXT columns.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
