package pipeline

import (
	"sync"
	"sync/atomic"
)

// bufferPool is a sync.Pool of chunk-sized byte buffers with hit/miss
// counters, adapted from the encryption-chunk buffer pool this project's
// ancestor used for AEAD scratch space, narrowed down to one size class.
// The Pipeline holds one and reports its counters, but its compress and
// decompress jobs allocate their own buffers and do not call Get or Put.
type bufferPool struct {
	pool *sync.Pool

	hits, misses int64
}

func newBufferPool(chunkSize int) *bufferPool {
	if chunkSize <= 0 {
		chunkSize = 65536
	}
	return &bufferPool{
		pool: &sync.Pool{
			New: func() interface{} { return make([]byte, 0, chunkSize+128) },
		},
	}
}

func (p *bufferPool) Get(size int) []byte {
	v := p.pool.Get()
	buf := v.([]byte)
	if cap(buf) < size {
		atomic.AddInt64(&p.misses, 1)
		return make([]byte, 0, size)
	}
	atomic.AddInt64(&p.hits, 1)
	return buf[:0]
}

func (p *bufferPool) Put(buf []byte) {
	p.pool.Put(buf[:0]) //nolint:staticcheck // reset length, keep capacity
}

// Metrics reports cumulative hit/miss counts for the pool.
func (p *bufferPool) Metrics() (hits, misses int64) {
	return atomic.LoadInt64(&p.hits), atomic.LoadInt64(&p.misses)
}
