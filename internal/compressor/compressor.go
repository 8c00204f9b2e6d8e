// Package compressor implements chunk-level stream compression for the
// snippet storage pipeline.
package compressor

import (
	"bytes"
	"errors"
	"io"

	"github.com/klauspost/compress/gzip"
)

// ErrCorruptPayload is returned by Decompress when the input is not a
// valid gzip stream.
var ErrCorruptPayload = errors.New("compressor: corrupt payload")

// Compressor compresses and decompresses individual chunk buffers.
// Implementations must never fail Compress for any finite input.
type Compressor interface {
	Compress(plaintext []byte) ([]byte, error)
	Decompress(compressed []byte) ([]byte, error)
}

// gzipCompressor is the default Compressor, backed by klauspost/compress's
// gzip implementation (API-compatible with compress/gzip, faster on modern
// hardware).
type gzipCompressor struct {
	level int
}

// New returns a Compressor using the given gzip compression level
// (gzip.DefaultCompression if level is 0).
func New(level int) Compressor {
	if level == 0 {
		level = gzip.DefaultCompression
	}
	return &gzipCompressor{level: level}
}

func (c *gzipCompressor) Compress(plaintext []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		w = gzip.NewWriter(&buf)
	}
	if _, err := w.Write(plaintext); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *gzipCompressor) Decompress(compressed []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, ErrCorruptPayload
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, ErrCorruptPayload
	}
	return out, nil
}
