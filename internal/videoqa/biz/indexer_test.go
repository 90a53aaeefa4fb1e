package biz

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/videoqa/internal/videoqa/metrics"
	"github.com/kart-io/videoqa/internal/videoqa/store"
	verrors "github.com/kart-io/videoqa/pkg/utils/errors"
)

func makePassages(texts ...string) []Passage {
	out := make([]Passage, len(texts))
	for i, t := range texts {
		out[i] = Passage{Index: i, Text: t}
	}
	return out
}

func TestIndexer_BuildBatches(t *testing.T) {
	embedder := &fakeEmbedder{}
	m := metrics.New()
	indexer := NewIndexer(embedder, store.NewMemoryBackend(), newTestPool(t), &IndexerConfig{BatchSize: 3, Concurrency: 2}, m)

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("passage number %d", i)
	}
	idx, err := indexer.Build(context.Background(), "abc", makePassages(texts...))
	require.NoError(t, err)

	assert.Equal(t, 10, idx.Len())
	assert.Equal(t, 4, embedder.batchCount())
	assert.Equal(t, VideoID("abc"), idx.VideoID())
	assert.Equal(t, uint64(10), m.Snapshot().Indexing.Passages)
}

func TestIndexer_SequentialWithoutPool(t *testing.T) {
	embedder := &fakeEmbedder{}
	indexer := NewIndexer(embedder, store.NewMemoryBackend(), nil, &IndexerConfig{BatchSize: 2}, metrics.New())

	idx, err := indexer.Build(context.Background(), "abc", makePassages("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, 2, embedder.batchCount())
}

func TestIndexer_EmbeddingFailure(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("connection refused")}
	m := metrics.New()
	indexer := NewIndexer(embedder, store.NewMemoryBackend(), newTestPool(t), nil, m)

	_, err := indexer.Build(context.Background(), "abc", makePassages("a", "b"))
	require.Error(t, err)
	assert.True(t, verrors.IsCode(err, verrors.ErrEmbedding.Code))
	assert.Equal(t, 502, verrors.FromError(err).HTTPStatus())
	assert.Equal(t, uint64(1), m.Snapshot().Indexing.Errors)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIndexer_EmbeddingTimeout(t *testing.T) {
	indexer := NewIndexer(&fakeEmbedder{err: timeoutErr{}}, store.NewMemoryBackend(), nil, nil, metrics.New())

	_, err := indexer.Build(context.Background(), "abc", makePassages("a"))
	require.Error(t, err)
	assert.True(t, verrors.IsCode(err, verrors.ErrUpstreamTimeout.Code))
	assert.Equal(t, 504, verrors.FromError(err).HTTPStatus())
}

func TestIndex_RetrieveClampAndOrder(t *testing.T) {
	embedder := &fakeEmbedder{}
	indexer := NewIndexer(embedder, store.NewMemoryBackend(), nil, nil, metrics.New())

	idx, err := indexer.Build(context.Background(), "abc", makePassages(
		"the weather is sunny today",
		"Paris is the capital of France",
		"cooking pasta needs salted water",
		"France has many cities",
		"a capital city hosts the government",
	))
	require.NoError(t, err)

	got, err := idx.Retrieve(context.Background(), "What is the capital of France?", 0)
	require.NoError(t, err)
	assert.Len(t, got, DefaultTopK)
	assert.Equal(t, 1, got[0].Index)

	got, err = idx.Retrieve(context.Background(), "capital of France", 100)
	require.NoError(t, err)
	assert.Len(t, got, 5)

	got, err = idx.Retrieve(context.Background(), "capital", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestIndex_EmptyTranscript(t *testing.T) {
	embedder := &fakeEmbedder{}
	indexer := NewIndexer(embedder, store.NewMemoryBackend(), nil, nil, metrics.New())

	idx, err := indexer.Build(context.Background(), "abc", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Len())

	got, err := idx.Retrieve(context.Background(), "anything", 4)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, embedder.batchCount())
	assert.Zero(t, embedder.singles.Load())
}
