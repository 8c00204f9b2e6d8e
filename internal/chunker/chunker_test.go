package chunker

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkDenseIndexing(t *testing.T) {
	content := bytes.Repeat([]byte("a"), 250)
	chunks, err := Chunk(content, 100)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	require.Len(t, chunks[0], 100)
	require.Len(t, chunks[1], 100)
	require.Len(t, chunks[2], 50)
}

func TestChunkReassembleRoundTrip(t *testing.T) {
	content := []byte("the quick brown fox jumps over the lazy dog")
	chunks, err := Chunk(content, 7)
	require.NoError(t, err)

	out, err := Reassemble(chunks)
	require.NoError(t, err)
	require.Equal(t, content, out)
}

func TestChunkEmptyInput(t *testing.T) {
	_, err := Chunk(nil, 10)
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestReassembleEmptyInput(t *testing.T) {
	_, err := Reassemble(nil)
	require.ErrorIs(t, err, ErrEmptyInput)

	_, err = Reassemble([][]byte{{}, {}})
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestChunkDefaultSize(t *testing.T) {
	content := bytes.Repeat([]byte("x"), DefaultSize+10)
	chunks, err := Chunk(content, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.Len(t, chunks[0], DefaultSize)
	require.Len(t, chunks[1], 10)
}
