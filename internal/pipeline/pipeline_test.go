package pipeline

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestPipeline() *Pipeline {
	return New(Config{ChunkSize: 16, Workers: 4, SearchBoundary: 100})
}

func TestForSaveForRetrievalRoundTrip(t *testing.T) {
	p := newTestPipeline()
	content := bytes.Repeat([]byte("abcdefgh"), 20)

	chunks, err := p.ForSave(context.Background(), content)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		require.Equal(t, i, c.Index)
	}

	out, err := p.ForRetrieval(chunks)
	require.NoError(t, err)
	require.Equal(t, content, out)
}

func TestForRetrievalParallelPreservesOrder(t *testing.T) {
	p := newTestPipeline()
	contents := [][]byte{
		bytes.Repeat([]byte("one"), 10),
		bytes.Repeat([]byte("two"), 10),
		bytes.Repeat([]byte("three"), 10),
	}

	var jobs []RetrievalJob
	for _, c := range contents {
		chunks, err := p.ForSave(context.Background(), c)
		require.NoError(t, err)
		jobs = append(jobs, RetrievalJob{Chunks: chunks, IsCompressed: true})
	}

	out, err := p.ForRetrievalParallel(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, c := range contents {
		require.Equal(t, c, out[i])
	}
}

func TestSearchStreamingFindsInteriorMatch(t *testing.T) {
	p := newTestPipeline()
	content := []byte("the quick brown fox jumps over the lazy dog, repeated to span multiple chunks nicely")
	chunks, err := p.ForSave(context.Background(), content)
	require.NoError(t, err)

	found, err := p.SearchStreaming(context.Background(), chunks, []byte("lazy dog"))
	require.NoError(t, err)
	require.True(t, found)

	found, err = p.SearchStreaming(context.Background(), chunks, []byte("not present anywhere"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestSearchStreamingFindsBoundaryMatch(t *testing.T) {
	p := New(Config{ChunkSize: 8, Workers: 4, SearchBoundary: 100})
	content := []byte("abcdefghijklmnop")
	chunks, err := p.ForSave(context.Background(), content)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	found, err := p.SearchStreaming(context.Background(), chunks, []byte("ghij"))
	require.NoError(t, err)
	require.True(t, found)
}
