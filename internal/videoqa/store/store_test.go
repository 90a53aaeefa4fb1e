package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/videoqa/pkg/component/milvus"
	"github.com/kart-io/videoqa/pkg/component/postgres"
)

func TestMemoryIndex_RetrieveOrdersAndClamps(t *testing.T) {
	ctx := context.Background()
	texts := []string{"a", "b", "c"}
	vectors := [][]float32{
		{1, 0},
		{0, 1},
		{1, 0},
	}
	idx, err := NewMemoryBackend().Build(ctx, "vid", texts, vectors)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())

	hits, err := idx.Retrieve(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	// a 与 c 同分，按段落位置排序
	assert.Equal(t, 0, hits[0].Index)
	assert.Equal(t, 2, hits[1].Index)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)

	hits, err = idx.Retrieve(ctx, []float32{0, 1}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "b", hits[0].Text)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}

	require.NoError(t, idx.Close(ctx))
}

func TestMemoryIndex_Empty(t *testing.T) {
	idx, err := NewMemoryBackend().Build(context.Background(), "vid", nil, nil)
	require.NoError(t, err)

	hits, err := idx.Retrieve(context.Background(), []float32{1}, 4)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryBackend_MismatchedInput(t *testing.T) {
	_, err := NewMemoryBackend().Build(context.Background(), "vid", []string{"a"}, nil)
	assert.Error(t, err)
}

type fakeMilvus struct {
	rows     map[string]int64
	ensured  []string
	dropped  []string
	inserted map[string][]string
	hits     []milvus.PassageHit
	topK     int
}

func newFakeMilvus() *fakeMilvus {
	return &fakeMilvus{rows: map[string]int64{}, inserted: map[string][]string{}}
}

func (f *fakeMilvus) EnsurePassageCollection(_ context.Context, name string, _ int) error {
	f.ensured = append(f.ensured, name)
	return nil
}

func (f *fakeMilvus) InsertPassages(_ context.Context, name string, texts []string, _ [][]float32) error {
	f.inserted[name] = texts
	f.rows[name] += int64(len(texts))
	return nil
}

func (f *fakeMilvus) SearchPassages(_ context.Context, _ string, _ []float32, topK int) ([]milvus.PassageHit, error) {
	f.topK = topK
	return f.hits, nil
}

func (f *fakeMilvus) CountPassages(_ context.Context, name string) (int64, error) {
	return f.rows[name], nil
}

func (f *fakeMilvus) DropCollection(_ context.Context, name string) error {
	f.dropped = append(f.dropped, name)
	delete(f.rows, name)
	return nil
}

func TestMilvusBackend_BuildRetrieveClose(t *testing.T) {
	ctx := context.Background()
	fake := newFakeMilvus()
	b := newMilvusBackend(fake, "videoqa", 2)
	name := milvus.CollectionName("videoqa", "abc")
	fake.rows[name] = 7

	idx, err := b.Build(ctx, "abc", []string{"x", "y", "z"}, [][]float32{{1, 0}, {0, 1}, {1, 1}})
	require.NoError(t, err)
	assert.Equal(t, []string{name}, fake.dropped, "stale rows are dropped")
	assert.Equal(t, []string{"x", "y", "z"}, fake.inserted[name])
	assert.Equal(t, 3, idx.Len())

	fake.hits = []milvus.PassageHit{
		{Idx: 2, Text: "z", Score: 0.5},
		{Idx: 0, Text: "x", Score: 0.9},
		{Idx: 1, Text: "y", Score: 0.5},
	}
	hits, err := idx.Retrieve(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, fake.topK)
	require.Len(t, hits, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{hits[0].Index, hits[1].Index, hits[2].Index})

	require.NoError(t, idx.Close(ctx))
	assert.Equal(t, []string{name, name}, fake.dropped)
}

func TestMilvusBackend_DimensionMismatch(t *testing.T) {
	b := newMilvusBackend(newFakeMilvus(), "videoqa", 3)
	_, err := b.Build(context.Background(), "abc", []string{"x"}, [][]float32{{1, 0}})
	assert.Error(t, err)
}

type fakePG struct {
	replaced map[string][]string
	hits     []postgres.PassageHit
}

func (f *fakePG) ReplacePassages(_ context.Context, videoID string, texts []string, _ [][]float32) error {
	f.replaced[videoID] = texts
	return nil
}

func (f *fakePG) SearchPassages(_ context.Context, _ string, _ []float32, topK int) ([]postgres.PassageHit, error) {
	if topK < len(f.hits) {
		return f.hits[:topK], nil
	}
	return f.hits, nil
}

func TestPGVectorBackend(t *testing.T) {
	ctx := context.Background()
	fake := &fakePG{replaced: map[string][]string{}}
	b := &pgvectorBackend{client: fake, dim: 2}

	idx, err := b.Build(ctx, "abc", []string{"x", "y"}, [][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, fake.replaced["abc"])

	fake.hits = []postgres.PassageHit{{Idx: 1, Text: "y", Score: 0.8}, {Idx: 0, Text: "x", Score: 0.2}}
	hits, err := idx.Retrieve(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "y", hits[0].Text)

	require.NoError(t, idx.Close(ctx))
}

func TestNewBackend(t *testing.T) {
	b, err := NewBackend("", Clients{})
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, b.Name())

	_, err = NewBackend(BackendMilvus, Clients{})
	assert.Error(t, err)
	_, err = NewBackend(BackendPGVector, Clients{})
	assert.Error(t, err)
	_, err = NewBackend("faiss", Clients{})
	assert.Error(t, err)
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, goredis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisTranscriptStore(t *testing.T) {
	ctx := context.Background()
	mr, client := setupTestRedis(t)
	s := NewRedisTranscriptStore(client, "videoqa:", time.Hour)

	rec, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, rec)

	want := &TranscriptRecord{VideoID: "abc", Language: "en", Text: "Paris is the capital of France."}
	require.NoError(t, s.Put(ctx, want))
	assert.True(t, mr.Exists("videoqa:transcript:abc"))
	assert.Equal(t, time.Hour, mr.TTL("videoqa:transcript:abc"))

	got, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRedisTranscriptStore_CorruptEntry(t *testing.T) {
	mr, client := setupTestRedis(t)
	require.NoError(t, mr.Set("videoqa:transcript:abc", "{not json"))

	_, err := NewRedisTranscriptStore(client, "videoqa:", 0).Get(context.Background(), "abc")
	assert.Error(t, err)
}
