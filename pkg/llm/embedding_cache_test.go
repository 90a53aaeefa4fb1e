package llm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	mu    sync.Mutex
	calls [][]string
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls = append(e.calls, append([]string(nil), texts...))
	e.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (e *countingEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	v, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (e *countingEmbedder) Name() string { return "counting" }

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, goredis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCachedEmbeddingProvider_HitsAfterFirstCall(t *testing.T) {
	mr, client := setupTestRedis(t)
	inner := &countingEmbedder{}
	p := NewCachedEmbeddingProvider(inner, client, &EmbeddingCacheConfig{TTL: time.Hour, KeyPrefix: "test:emb:"})

	first, err := p.Embed(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	second, err := p.Embed(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, inner.calls, 1)
	assert.Equal(t, EmbeddingCacheStats{Hits: 2, Misses: 2}, p.Stats())

	key := p.cacheKey("alpha")
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Hour, mr.TTL(key))
}

func TestCachedEmbeddingProvider_OnlyEmbedsMisses(t *testing.T) {
	_, client := setupTestRedis(t)
	inner := &countingEmbedder{}
	p := NewCachedEmbeddingProvider(inner, client, nil)

	_, err := p.EmbedSingle(context.Background(), "alpha")
	require.NoError(t, err)

	got, err := p.Embed(context.Background(), []string{"alpha", "gamma!", "beta"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []float32{5, 1}, got[0])
	assert.Equal(t, []float32{6, 1}, got[1])
	assert.Equal(t, []float32{4, 1}, got[2])

	require.Len(t, inner.calls, 2)
	assert.Equal(t, []string{"gamma!", "beta"}, inner.calls[1])
}

func TestCachedEmbeddingProvider_RedisDownFallsBack(t *testing.T) {
	mr, client := setupTestRedis(t)
	mr.Close()

	inner := &countingEmbedder{}
	p := NewCachedEmbeddingProvider(inner, client, nil)

	got, err := p.Embed(context.Background(), []string{"alpha"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{5, 1}}, got)
	assert.Len(t, inner.calls, 1)
	assert.GreaterOrEqual(t, p.Stats().Errors, uint64(1))
}

func TestCachedEmbeddingProvider_NilRedis(t *testing.T) {
	inner := &countingEmbedder{}
	p := NewCachedEmbeddingProvider(inner, nil, nil)

	_, err := p.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	_, err = p.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, inner.calls, 2)
	assert.Equal(t, "counting", p.Name())
}
