// Package store persists snippet metadata and chunks in PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("store: not found")

// Status is a snippet's processing state.
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Snippet is a row in the snippets table.
type Snippet struct {
	ID          int64
	Owner       int64
	SourceURL   string
	TotalChunks int
	TotalSize   int64
	IsDeleted   bool
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Chunk is a row in the chunks table.
type Chunk struct {
	ID           int64
	SnippetID    int64
	ChunkIndex   int
	Content      []byte
	IsCompressed bool
	ContentHash  []byte
	CreatedAt    time.Time
}

// Store wraps a pgx connection pool with the snippet/chunk query surface
// the coordinator depends on.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an already-connected pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pgxpool against dsn with the given max connection count.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store.Connect: parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store.Connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store.Connect: ping: %w", err)
	}
	return pool, nil
}

// InsertSnippet creates a metadata row in PROCESSING status and returns its id.
func (s *Store) InsertSnippet(ctx context.Context, owner int64, sourceURL string, totalSize int64) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO snippets (owner_id, source_url, total_chunks, total_size, is_deleted, status, created_at, updated_at)
		VALUES ($1, $2, 0, $3, false, $4, now(), now())
		RETURNING id`,
		owner, sourceURL, totalSize, StatusProcessing,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store.InsertSnippet: %w", err)
	}
	return id, nil
}

// InsertChunks writes all chunks for one snippet in a single batched round trip.
func (s *Store) InsertChunks(ctx context.Context, snippetID int64, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for _, c := range chunks {
		batch.Queue(`
			INSERT INTO chunks (snippet_id, chunk_index, content, is_compressed, content_hash, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			snippetID, c.ChunkIndex, c.Content, c.IsCompressed, c.ContentHash, now,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < len(chunks); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("store.InsertChunks: chunk %d: %w", i, err)
		}
	}
	return nil
}

// UpdateSnippetCompleted marks a snippet COMPLETED with its final chunk count.
func (s *Store) UpdateSnippetCompleted(ctx context.Context, snippetID int64, totalChunks int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE snippets SET status = $1, total_chunks = $2, updated_at = now() WHERE id = $3`,
		StatusCompleted, totalChunks, snippetID,
	)
	if err != nil {
		return fmt.Errorf("store.UpdateSnippetCompleted: %w", err)
	}
	return nil
}

// UpdateSnippetStatus transitions a snippet's status field alone.
func (s *Store) UpdateSnippetStatus(ctx context.Context, snippetID int64, status Status) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE snippets SET status = $1, updated_at = now() WHERE id = $2`,
		status, snippetID,
	)
	if err != nil {
		return fmt.Errorf("store.UpdateSnippetStatus: %w", err)
	}
	return nil
}

// SoftDeleteSnippet flips is_deleted without removing the row or its chunks.
func (s *Store) SoftDeleteSnippet(ctx context.Context, owner, snippetID int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE snippets SET is_deleted = true, updated_at = now()
		WHERE id = $1 AND owner_id = $2 AND is_deleted = false`,
		snippetID, owner,
	)
	if err != nil {
		return fmt.Errorf("store.SoftDeleteSnippet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindSnippetByIDAndOwner returns one non-deleted snippet scoped to its owner.
func (s *Store) FindSnippetByIDAndOwner(ctx context.Context, owner, snippetID int64) (Snippet, error) {
	var sn Snippet
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, source_url, total_chunks, total_size, is_deleted, status, created_at, updated_at
		FROM snippets WHERE id = $1 AND owner_id = $2 AND is_deleted = false`,
		snippetID, owner,
	).Scan(&sn.ID, &sn.Owner, &sn.SourceURL, &sn.TotalChunks, &sn.TotalSize, &sn.IsDeleted, &sn.Status, &sn.CreatedAt, &sn.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snippet{}, ErrNotFound
		}
		return Snippet{}, fmt.Errorf("store.FindSnippetByIDAndOwner: %w", err)
	}
	return sn, nil
}

// FindRecentNonDeletedByOwner returns the most recent limit snippets for owner.
func (s *Store) FindRecentNonDeletedByOwner(ctx context.Context, owner int64, limit int) ([]Snippet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, source_url, total_chunks, total_size, is_deleted, status, created_at, updated_at
		FROM snippets WHERE owner_id = $1 AND is_deleted = false
		ORDER BY created_at DESC LIMIT $2`,
		owner, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store.FindRecentNonDeletedByOwner: %w", err)
	}
	defer rows.Close()
	return scanSnippets(rows)
}

// FindAllByID returns metadata for every id given, keyed by id.
func (s *Store) FindAllByID(ctx context.Context, owner int64, ids []int64) (map[int64]Snippet, error) {
	if len(ids) == 0 {
		return map[int64]Snippet{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, source_url, total_chunks, total_size, is_deleted, status, created_at, updated_at
		FROM snippets WHERE owner_id = $1 AND id = ANY($2) AND is_deleted = false`,
		owner, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("store.FindAllByID: %w", err)
	}
	defer rows.Close()

	snippets, err := scanSnippets(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]Snippet, len(snippets))
	for _, sn := range snippets {
		out[sn.ID] = sn
	}
	return out, nil
}

func scanSnippets(rows pgx.Rows) ([]Snippet, error) {
	var out []Snippet
	for rows.Next() {
		var sn Snippet
		if err := rows.Scan(&sn.ID, &sn.Owner, &sn.SourceURL, &sn.TotalChunks, &sn.TotalSize, &sn.IsDeleted, &sn.Status, &sn.CreatedAt, &sn.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan snippet: %w", err)
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

// FindChunksBySnippetOrderByIndex returns one snippet's chunks in index order.
func (s *Store) FindChunksBySnippetOrderByIndex(ctx context.Context, snippetID int64) ([]Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, snippet_id, chunk_index, content, is_compressed, content_hash, created_at
		FROM chunks WHERE snippet_id = $1 ORDER BY chunk_index ASC`,
		snippetID,
	)
	if err != nil {
		return nil, fmt.Errorf("store.FindChunksBySnippetOrderByIndex: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// FindChunksForSnippets reads chunks for every given snippet in one round trip,
// ordered by (snippet_id, chunk_index).
func (s *Store) FindChunksForSnippets(ctx context.Context, snippetIDs []int64) ([]Chunk, error) {
	if len(snippetIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, snippet_id, chunk_index, content, is_compressed, content_hash, created_at
		FROM chunks WHERE snippet_id = ANY($1) ORDER BY snippet_id ASC, chunk_index ASC`,
		snippetIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("store.FindChunksForSnippets: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func scanChunks(rows pgx.Rows) ([]Chunk, error) {
	var out []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.SnippetID, &c.ChunkIndex, &c.Content, &c.IsCompressed, &c.ContentHash, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountNonDeletedByOwner returns how many non-deleted snippets owner currently has.
func (s *Store) CountNonDeletedByOwner(ctx context.Context, owner int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM snippets WHERE owner_id = $1 AND is_deleted = false`,
		owner,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("store.CountNonDeletedByOwner: %w", err)
	}
	return count, nil
}
