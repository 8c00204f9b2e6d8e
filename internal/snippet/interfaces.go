package snippet

import (
	"context"

	"github.com/kenneth/clipboard-service/internal/pipeline"
	"github.com/kenneth/clipboard-service/internal/scheduler"
	"github.com/kenneth/clipboard-service/internal/store"
)

// Store is the persistence surface the coordinator depends on. It is
// satisfied by *store.Store; tests substitute an in-memory fake.
type Store interface {
	InsertSnippet(ctx context.Context, owner int64, sourceURL string, totalSize int64) (int64, error)
	InsertChunks(ctx context.Context, snippetID int64, chunks []store.Chunk) error
	UpdateSnippetCompleted(ctx context.Context, snippetID int64, totalChunks int) error
	UpdateSnippetStatus(ctx context.Context, snippetID int64, status store.Status) error
	SoftDeleteSnippet(ctx context.Context, owner, snippetID int64) error
	FindSnippetByIDAndOwner(ctx context.Context, owner, snippetID int64) (store.Snippet, error)
	FindRecentNonDeletedByOwner(ctx context.Context, owner int64, limit int) ([]store.Snippet, error)
	FindAllByID(ctx context.Context, owner int64, ids []int64) (map[int64]store.Snippet, error)
	FindChunksBySnippetOrderByIndex(ctx context.Context, snippetID int64) ([]store.Chunk, error)
	FindChunksForSnippets(ctx context.Context, snippetIDs []int64) ([]store.Chunk, error)
	CountNonDeletedByOwner(ctx context.Context, owner int64) (int, error)
}

// RecencyQueue is the ordering surface the coordinator depends on. It is
// satisfied by *recency.Queue.
type RecencyQueue interface {
	PushFront(ctx context.Context, owner, id int64) error
	MoveToFront(ctx context.Context, owner, id int64) error
	Recent(ctx context.Context, owner int64) ([]int64, error)
	Remove(ctx context.Context, owner, id int64) error
	Clear(ctx context.Context, owner int64) error
	Size(ctx context.Context, owner int64) (int64, error)
}

// Pipeline is the compress/decompress/search surface the coordinator
// depends on. It is satisfied by *pipeline.Pipeline.
type Pipeline interface {
	ForSave(ctx context.Context, content []byte) ([]pipeline.Chunk, error)
	ForRetrieval(chunks []pipeline.Chunk) ([]byte, error)
	ForRetrievalParallel(ctx context.Context, jobs []pipeline.RetrievalJob) ([][]byte, error)
	SearchStreaming(ctx context.Context, chunks []pipeline.Chunk, query []byte) (bool, error)
}

// Scheduler is the background-job surface the coordinator depends on. It
// is satisfied by *scheduler.Scheduler.
type Scheduler interface {
	Submit(job scheduler.Job) error
}
