// Package snippet implements the clipboard coordinator: accept, async
// processing, retrieval, search, delete, and recency touch, wired across
// the pipeline, store, recency queue, and async scheduler.
package snippet

import (
	"bytes"
	"context"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kenneth/clipboard-service/internal/audit"
	"github.com/kenneth/clipboard-service/internal/config"
	"github.com/kenneth/clipboard-service/internal/pipeline"
	"github.com/kenneth/clipboard-service/internal/store"
)

const (
	wordScanCap   = 1_000_000
	wordSkipAbove = 5_000_000
)

var tracer = otel.Tracer("github.com/kenneth/clipboard-service/internal/snippet")

// Summary is the identifier-and-timestamp response to a successful accept.
type Summary struct {
	ID        int64
	CreatedAt time.Time
}

// Item is one snippet as returned by fetchRecent, fetchOne, or search,
// with content populated only when the caller asked for it.
type Item struct {
	ID         int64
	SourceURL  string
	TotalSize  int64
	Status     store.Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Content    string
	HasContent bool
}

// Service is the snippet coordinator (C6).
type Service struct {
	store     Store
	recency   RecencyQueue
	pipeline  Pipeline
	scheduler Scheduler
	audit     audit.Logger
	cfg       config.SnippetConfig
	logger    *logrus.Logger
}

// New wires the coordinator's dependencies together.
func New(st Store, rq RecencyQueue, pl Pipeline, sch Scheduler, al audit.Logger, cfg config.SnippetConfig, logger *logrus.Logger) *Service {
	return &Service{store: st, recency: rq, pipeline: pl, scheduler: sch, audit: al, cfg: cfg, logger: logger}
}

// Accept validates and stores snippet metadata synchronously, schedules
// chunking/compression in the background, and returns immediately.
func (s *Service) Accept(ctx context.Context, owner int64, content []byte, sourceURL string) (Summary, error) {
	ctx, span := tracer.Start(ctx, "snippet.accept", trace.WithAttributes(
		attribute.Int64("owner", owner),
		attribute.Int("content_bytes", len(content)),
	))
	defer span.End()

	if len(content) == 0 {
		return Summary{}, ErrBadRequest("content must not be empty")
	}
	if int64(len(content)) > s.cfg.MaxSnippetBytes {
		return Summary{}, ErrBadRequest("content exceeds maximum snippet size")
	}
	if len(sourceURL) > 2048 {
		return Summary{}, ErrBadRequest("sourceUrl exceeds maximum length")
	}

	if err := s.checkDuplicate(ctx, owner, content); err != nil {
		return Summary{}, err
	}

	count, err := s.store.CountNonDeletedByOwner(ctx, owner)
	if err != nil {
		return Summary{}, wrapErr(KindInternal, "count snippets", err)
	}
	if count >= s.cfg.MaxSnippetsPerUser {
		return Summary{}, ErrQuotaExceeded(count, s.cfg.MaxSnippetsPerUser)
	}

	if wordCount := estimateWordCount(content); wordCount > s.cfg.MaxWords {
		return Summary{}, ErrWordLimitExceeded(wordCount, s.cfg.MaxWords)
	}

	id, err := s.store.InsertSnippet(ctx, owner, sourceURL, int64(len(content)))
	if err != nil {
		return Summary{}, wrapErr(KindInternal, "insert snippet", err)
	}

	if err := s.recency.PushFront(ctx, owner, id); err != nil {
		s.logger.WithError(err).WithField("snippet_id", id).Warn("recency push-front failed")
	}

	body := append([]byte(nil), content...)
	parent := trace.SpanContextFromContext(ctx)
	if err := s.scheduler.Submit(func(jobCtx context.Context) {
		s.processAsync(trace.ContextWithSpanContext(jobCtx, parent), id, body)
	}); err != nil {
		s.logger.WithError(err).WithField("snippet_id", id).Error("failed to schedule snippet processing")
	}

	s.auditEvent(ctx, "accept", owner, id, len(content), nil)

	return Summary{ID: id, CreatedAt: time.Now().UTC()}, nil
}

// checkDuplicate reconstructs up to DuplicateScanDepth recent snippets for
// owner and fails with ErrDuplicate if any byte-for-byte matches content.
func (s *Service) checkDuplicate(ctx context.Context, owner int64, content []byte) error {
	candidates, err := s.store.FindRecentNonDeletedByOwner(ctx, owner, s.cfg.DuplicateScanDepth)
	if err != nil {
		return wrapErr(KindInternal, "scan for duplicates", err)
	}

	for _, c := range candidates {
		if c.Status == store.StatusProcessing && c.TotalChunks == 0 {
			continue
		}
		rows, err := s.store.FindChunksBySnippetOrderByIndex(ctx, c.ID)
		if err != nil || len(rows) == 0 {
			continue
		}
		chunks := toChunks(rows)
		plain, err := s.pipeline.ForRetrieval(chunks)
		if err != nil {
			continue
		}
		if bytes.Equal(plain, content) {
			return ErrDuplicate()
		}
	}
	return nil
}

// processAsync chunks, compresses, and persists a snippet's content in
// the background. Failures are recorded as a status transition and never
// propagate to the caller of Accept.
func (s *Service) processAsync(ctx context.Context, snippetID int64, content []byte) {
	ctx, span := tracer.Start(ctx, "snippet.processAsync", trace.WithAttributes(
		attribute.Int64("snippet_id", snippetID),
	))
	defer span.End()

	chunks, err := s.pipeline.ForSave(ctx, content)
	if err != nil {
		s.markFailed(ctx, snippetID, err)
		return
	}

	storeChunks := make([]store.Chunk, len(chunks))
	for i, c := range chunks {
		storeChunks[i] = store.Chunk{
			ChunkIndex:   c.Index,
			Content:      c.Content,
			IsCompressed: c.IsCompressed,
			ContentHash:  c.ContentHash[:],
		}
	}

	if err := s.store.InsertChunks(ctx, snippetID, storeChunks); err != nil {
		s.markFailed(ctx, snippetID, err)
		return
	}

	if err := s.store.UpdateSnippetCompleted(ctx, snippetID, len(chunks)); err != nil {
		s.markFailed(ctx, snippetID, err)
		return
	}

	s.auditEvent(ctx, "process", 0, snippetID, len(content), nil)
}

func (s *Service) markFailed(ctx context.Context, snippetID int64, cause error) {
	s.logger.WithError(cause).WithField("snippet_id", snippetID).Error("snippet processing failed")
	if err := s.store.UpdateSnippetStatus(ctx, snippetID, store.StatusFailed); err != nil {
		s.logger.WithError(err).WithField("snippet_id", snippetID).Error("failed to mark snippet failed")
	}
	s.auditEvent(ctx, "process", 0, snippetID, 0, cause)
}

// FetchRecent returns the owner's recency-ordered snippets, joining Redis
// ordering with a single bulk metadata query and a single batched chunk
// read, decompressing every ready snippet's content in parallel.
func (s *Service) FetchRecent(ctx context.Context, owner int64) ([]Item, error) {
	ctx, span := tracer.Start(ctx, "snippet.fetchRecent", trace.WithAttributes(attribute.Int64("owner", owner)))
	defer span.End()

	ids, err := s.recency.Recent(ctx, owner)
	if err != nil {
		return nil, wrapErr(KindInternal, "read recency queue", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	byID, err := s.store.FindAllByID(ctx, owner, ids)
	if err != nil {
		return nil, wrapErr(KindInternal, "load snippet metadata", err)
	}

	items := make([]Item, 0, len(ids))
	var readyIDs []int64
	for _, id := range ids {
		sn, ok := byID[id]
		if !ok {
			continue
		}
		items = append(items, toItem(sn))
		if sn.Status == store.StatusCompleted {
			readyIDs = append(readyIDs, id)
		}
	}
	if len(readyIDs) == 0 {
		return items, nil
	}

	rows, err := s.store.FindChunksForSnippets(ctx, readyIDs)
	if err != nil {
		return nil, wrapErr(KindInternal, "load chunks", err)
	}

	byChunkSnippet := make(map[int64][]store.Chunk, len(readyIDs))
	for _, r := range rows {
		byChunkSnippet[r.SnippetID] = append(byChunkSnippet[r.SnippetID], r)
	}

	jobs := make([]pipeline.RetrievalJob, len(readyIDs))
	for i, id := range readyIDs {
		jobs[i] = pipeline.RetrievalJob{Chunks: toChunks(byChunkSnippet[id])}
	}

	plains, err := s.pipeline.ForRetrievalParallel(ctx, jobs)
	if err != nil {
		return nil, wrapErr(KindCorruptPayload, "reassemble snippets", err)
	}

	contentByID := make(map[int64]string, len(readyIDs))
	for i, id := range readyIDs {
		contentByID[id] = string(plains[i])
	}

	for i := range items {
		if content, ok := contentByID[items[i].ID]; ok {
			items[i].Content = content
			items[i].HasContent = true
		}
	}
	return items, nil
}

// FetchOne retrieves and decompresses a single snippet's content, moving
// it to the front of the recency queue.
func (s *Service) FetchOne(ctx context.Context, owner, snippetID int64) (Item, error) {
	ctx, span := tracer.Start(ctx, "snippet.fetchOne", trace.WithAttributes(
		attribute.Int64("owner", owner),
		attribute.Int64("snippet_id", snippetID),
	))
	defer span.End()

	sn, err := s.store.FindSnippetByIDAndOwner(ctx, owner, snippetID)
	if err != nil {
		if err == store.ErrNotFound {
			return Item{}, ErrNotFound()
		}
		return Item{}, wrapErr(KindInternal, "load snippet", err)
	}
	if sn.Status != store.StatusCompleted {
		return Item{}, ErrNotReady()
	}

	rows, err := s.store.FindChunksBySnippetOrderByIndex(ctx, snippetID)
	if err != nil {
		return Item{}, wrapErr(KindInternal, "load chunks", err)
	}

	plain, err := s.pipeline.ForRetrieval(toChunks(rows))
	if err != nil {
		return Item{}, wrapErr(KindCorruptPayload, "reassemble snippet", err)
	}

	if err := s.recency.MoveToFront(ctx, owner, snippetID); err != nil {
		s.logger.WithError(err).WithField("snippet_id", snippetID).Warn("recency move-to-front failed")
	}

	item := toItem(sn)
	item.Content = string(plain)
	item.HasContent = true

	s.auditEvent(ctx, "access", owner, snippetID, len(plain), nil)
	return item, nil
}

// Search scans the owner's recent non-deleted snippets for query,
// returning matches without fully reassembling non-matching candidates.
func (s *Service) Search(ctx context.Context, owner int64, query string) ([]Item, error) {
	ctx, span := tracer.Start(ctx, "snippet.search", trace.WithAttributes(attribute.Int64("owner", owner)))
	defer span.End()

	if query == "" {
		return nil, ErrBadRequest("query must not be empty")
	}

	candidates, err := s.store.FindRecentNonDeletedByOwner(ctx, owner, s.cfg.DuplicateScanDepth)
	if err != nil {
		return nil, wrapErr(KindInternal, "scan snippets", err)
	}

	var matches []Item
	for _, c := range candidates {
		if c.Status != store.StatusCompleted {
			continue
		}
		rows, err := s.store.FindChunksBySnippetOrderByIndex(ctx, c.ID)
		if err != nil || len(rows) == 0 {
			continue
		}
		chunks := toChunks(rows)
		found, err := s.pipeline.SearchStreaming(ctx, chunks, []byte(query))
		if err != nil || !found {
			continue
		}
		plain, err := s.pipeline.ForRetrieval(chunks)
		if err != nil {
			continue
		}
		item := toItem(c)
		item.Content = string(plain)
		item.HasContent = true
		matches = append(matches, item)
	}

	s.auditEvent(ctx, "search", owner, 0, len(query), nil)
	return matches, nil
}

// Delete soft-deletes a snippet and best-effort removes it from the
// recency queue.
func (s *Service) Delete(ctx context.Context, owner, snippetID int64) error {
	ctx, span := tracer.Start(ctx, "snippet.delete", trace.WithAttributes(
		attribute.Int64("owner", owner),
		attribute.Int64("snippet_id", snippetID),
	))
	defer span.End()

	if err := s.store.SoftDeleteSnippet(ctx, owner, snippetID); err != nil {
		if err == store.ErrNotFound {
			return ErrNotFound()
		}
		return wrapErr(KindInternal, "delete snippet", err)
	}
	if err := s.recency.Remove(ctx, owner, snippetID); err != nil {
		s.logger.WithError(err).WithField("snippet_id", snippetID).Warn("recency remove failed")
	}
	s.auditEvent(ctx, "delete", owner, snippetID, 0, nil)
	return nil
}

// Touch moves a snippet to the front of the owner's recency queue
// without reading its content.
func (s *Service) Touch(ctx context.Context, owner, snippetID int64) error {
	ctx, span := tracer.Start(ctx, "snippet.touch", trace.WithAttributes(
		attribute.Int64("owner", owner),
		attribute.Int64("snippet_id", snippetID),
	))
	defer span.End()

	if _, err := s.store.FindSnippetByIDAndOwner(ctx, owner, snippetID); err != nil {
		if err == store.ErrNotFound {
			return ErrNotFound()
		}
		return wrapErr(KindInternal, "load snippet", err)
	}
	if err := s.recency.MoveToFront(ctx, owner, snippetID); err != nil {
		return wrapErr(KindInternal, "move to front", err)
	}
	return nil
}

func (s *Service) auditEvent(ctx context.Context, op string, owner, snippetID int64, size int, cause error) {
	if s.audit == nil {
		return
	}
	success := cause == nil
	var errMsg string
	if cause != nil {
		errMsg = cause.Error()
	}
	s.audit.Log(ctx, audit.Event{
		Operation: op,
		Owner:     owner,
		SnippetID: snippetID,
		Size:      size,
		Success:   success,
		Error:     errMsg,
	})
}

func toChunks(rows []store.Chunk) []pipeline.Chunk {
	sort.Slice(rows, func(i, j int) bool { return rows[i].ChunkIndex < rows[j].ChunkIndex })
	out := make([]pipeline.Chunk, len(rows))
	for i, r := range rows {
		c := pipeline.Chunk{Index: r.ChunkIndex, Content: r.Content, IsCompressed: r.IsCompressed}
		copy(c.ContentHash[:], r.ContentHash)
		out[i] = c
	}
	return out
}

func toItem(sn store.Snippet) Item {
	return Item{
		ID:        sn.ID,
		SourceURL: sn.SourceURL,
		TotalSize: sn.TotalSize,
		Status:    sn.Status,
		CreatedAt: sn.CreatedAt,
		UpdatedAt: sn.UpdatedAt,
	}
}

// estimateWordCount approximates the number of whitespace-delimited words
// in content. Inputs above wordSkipAbove bytes are not counted and yield 0.
// Longer than wordScanCap bytes, the count is taken over a wordScanCap-byte
// prefix and extrapolated linearly to the full length, trading exactness
// for bounded latency on huge snippets.
func estimateWordCount(content []byte) int {
	if len(content) > wordSkipAbove {
		return 0
	}
	scanLen := len(content)
	extrapolate := false
	if scanLen > wordScanCap {
		scanLen = wordScanCap
		extrapolate = true
	}

	sample := content[:scanLen]
	words := 0
	inWord := false
	for i := 0; i < len(sample); {
		r, size := utf8.DecodeRune(sample[i:])
		if size == 0 {
			break
		}
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			inWord = false
		} else if !inWord {
			inWord = true
			words++
		}
		i += size
	}

	if extrapolate && scanLen > 0 {
		ratio := float64(len(content)) / float64(scanLen)
		words = int(float64(words) * ratio)
	}
	return words
}
