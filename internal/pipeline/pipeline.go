// Package pipeline orchestrates chunking and compression on save, and
// decompression and reassembly on load, fanning work out across a bounded
// worker pool shared by every caller.
package pipeline

import (
	"bytes"
	"context"
	"sort"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"github.com/kenneth/clipboard-service/internal/chunker"
	"github.com/kenneth/clipboard-service/internal/compressor"
)

// Chunk is a single ordered, possibly-compressed piece of a snippet.
type Chunk struct {
	Index        int
	Content      []byte
	IsCompressed bool
	ContentHash  [32]byte
}

// Pipeline runs chunk/compress and decompress/reassemble jobs on a
// process-wide bounded worker pool.
type Pipeline struct {
	compressor compressor.Compressor
	chunkSize  int
	boundary   int
	sem        chan struct{}
	bufpool    *bufferPool
}

// Config controls pipeline tunables.
type Config struct {
	ChunkSize      int
	Workers        int
	SearchBoundary int
	CompressionLvl int
}

// New constructs a Pipeline with a worker-pool semaphore of size
// cfg.Workers (10 when cfg.Workers is not positive).
func New(cfg Config) *Pipeline {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 10
	}
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = chunker.DefaultSize
	}
	boundary := cfg.SearchBoundary
	if boundary <= 0 {
		boundary = 100
	}
	return &Pipeline{
		compressor: compressor.New(cfg.CompressionLvl),
		chunkSize:  chunkSize,
		boundary:   boundary,
		sem:        make(chan struct{}, workers),
		bufpool:    newBufferPool(chunkSize),
	}
}

// acquire blocks until a worker slot is free or ctx is done.
func (p *Pipeline) acquire(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) release() {
	<-p.sem
}

// ForSave chunks and compresses content, returning chunks in ascending
// index order ready for a bulk insert.
func (p *Pipeline) ForSave(ctx context.Context, content []byte) ([]Chunk, error) {
	pieces, err := chunker.Chunk(content, p.chunkSize)
	if err != nil {
		return nil, err
	}

	out := make([]Chunk, len(pieces))
	g, gctx := errgroup.WithContext(ctx)
	for i, piece := range pieces {
		i, piece := i, piece
		g.Go(func() error {
			if err := p.acquire(gctx); err != nil {
				return err
			}
			defer p.release()

			compressed, err := p.compressor.Compress(piece)
			if err != nil {
				return err
			}
			out[i] = Chunk{
				Index:        i,
				Content:      compressed,
				IsCompressed: true,
				ContentHash:  blake2b.Sum256(piece),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ForRetrieval decompresses and reassembles chunks into plaintext.
// Chunks must already be sorted by index; this is a contract, not
// something ForRetrieval re-verifies.
func (p *Pipeline) ForRetrieval(chunks []Chunk) ([]byte, error) {
	pieces := make([][]byte, len(chunks))
	for i, c := range chunks {
		if !c.IsCompressed {
			pieces[i] = c.Content
			continue
		}
		plain, err := p.compressor.Decompress(c.Content)
		if err != nil {
			return nil, err
		}
		pieces[i] = plain
	}
	return chunker.Reassemble(pieces)
}

// RetrievalJob pairs the chunks of one snippet with its compression flag.
type RetrievalJob struct {
	Chunks       []Chunk
	IsCompressed bool
}

// ForRetrievalParallel applies ForRetrieval to many snippets concurrently,
// bounded by the shared worker pool, returning results aligned with the
// input order.
func (p *Pipeline) ForRetrievalParallel(ctx context.Context, jobs []RetrievalJob) ([][]byte, error) {
	out := make([][]byte, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			if err := p.acquire(gctx); err != nil {
				return err
			}
			defer p.release()

			plain, err := p.ForRetrieval(job.Chunks)
			if err != nil {
				return err
			}
			out[i] = plain
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchStreaming reports whether query occurs as a substring of the
// plaintext represented by chunks, decompressing chunks in parallel and
// checking chunk interiors plus cross-chunk boundary windows without
// fully reassembling the snippet.
func (p *Pipeline) SearchStreaming(ctx context.Context, chunks []Chunk, query []byte) (bool, error) {
	if len(query) == 0 || len(chunks) == 0 {
		return false, nil
	}

	ordered := make([]Chunk, len(chunks))
	copy(ordered, chunks)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	plains := make([][]byte, len(ordered))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range ordered {
		i, c := i, c
		g.Go(func() error {
			if err := p.acquire(gctx); err != nil {
				return err
			}
			defer p.release()

			if !c.IsCompressed {
				plains[i] = c.Content
				return nil
			}
			plain, err := p.compressor.Decompress(c.Content)
			if err != nil {
				return err
			}
			plains[i] = plain
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	for _, plain := range plains {
		if bytes.Contains(plain, query) {
			return true, nil
		}
	}

	overlap := len(query) - 1
	if overlap > p.boundary {
		overlap = p.boundary
	}
	for i := 0; i < len(plains)-1; i++ {
		left := suffix(plains[i], overlap)
		right := prefix(plains[i+1], overlap)
		window := append(append([]byte{}, left...), right...)
		if bytes.Contains(window, query) {
			return true, nil
		}
	}
	return false, nil
}

func suffix(b []byte, n int) []byte {
	if n <= 0 || len(b) == 0 {
		return nil
	}
	if n > len(b) {
		n = len(b)
	}
	return b[len(b)-n:]
}

func prefix(b []byte, n int) []byte {
	if n <= 0 || len(b) == 0 {
		return nil
	}
	if n > len(b) {
		n = len(b)
	}
	return b[:n]
}

// BufferPoolMetrics exposes hit/miss counters for the chunk buffer pool.
func (p *Pipeline) BufferPoolMetrics() (hits, misses int64) {
	return p.bufpool.Metrics()
}
