package biz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/videoqa/internal/videoqa/metrics"
	"github.com/kart-io/videoqa/internal/videoqa/store"
	"github.com/kart-io/videoqa/pkg/cache"
)

func newUnboundedCache(t *testing.T) *PipelineCache {
	t.Helper()
	c, err := NewPipelineCache(cache.Config{}, nil, metrics.New())
	require.NoError(t, err)
	return c
}

func newTestIndex(t *testing.T, id VideoID) (*Index, *closableIndex) {
	t.Helper()
	vi, err := store.NewMemoryBackend().Build(context.Background(), string(id), []string{"x"}, [][]float32{{1}})
	require.NoError(t, err)
	ci := &closableIndex{VectorIndex: vi}
	return &Index{videoID: id, vectors: ci, embedder: &fakeEmbedder{}, topK: DefaultTopK, metrics: metrics.New()}, ci
}

func TestPipelineCache_TranscriptIdempotent(t *testing.T) {
	c := newUnboundedCache(t)
	var calls atomic.Int64
	fetch := func(context.Context) (*TranscriptDocument, error) {
		calls.Add(1)
		return &TranscriptDocument{VideoID: "abc", Language: "en", Text: "hello"}, nil
	}

	first, err := c.Transcript(context.Background(), "abc", fetch)
	require.NoError(t, err)
	second, err := c.Transcript(context.Background(), "abc", fetch)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int64(1), calls.Load())

	st := c.Stats().Transcripts
	assert.Equal(t, MappingStats{Entries: 1, Hits: 1, Misses: 1, Computes: 1}, st)
}

func TestPipelineCache_SingleFlight(t *testing.T) {
	c := newUnboundedCache(t)

	const n = 32
	var (
		fetches atomic.Int64
		builds  atomic.Int64
		wg      sync.WaitGroup
		start   = make(chan struct{})
	)
	idx, _ := newTestIndex(t, "abc")

	results := make([]*Index, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := c.Transcript(context.Background(), "abc", func(context.Context) (*TranscriptDocument, error) {
				fetches.Add(1)
				time.Sleep(50 * time.Millisecond)
				return &TranscriptDocument{VideoID: "abc", Text: "hello"}, nil
			})
			assert.NoError(t, err)

			got, err := c.Index(context.Background(), "abc", func(context.Context) (*Index, error) {
				builds.Add(1)
				time.Sleep(50 * time.Millisecond)
				return idx, nil
			})
			assert.NoError(t, err)
			results[i] = got
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), fetches.Load())
	assert.Equal(t, int64(1), builds.Load())
	for _, r := range results {
		assert.Same(t, idx, r)
	}
}

func TestPipelineCache_ErrorsAreNotCached(t *testing.T) {
	c := newUnboundedCache(t)
	boom := errors.New("boom")

	_, err := c.Transcript(context.Background(), "abc", func(context.Context) (*TranscriptDocument, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	doc, err := c.Transcript(context.Background(), "abc", func(context.Context) (*TranscriptDocument, error) {
		return &TranscriptDocument{VideoID: "abc", Text: "ok"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", doc.Text)
	assert.Equal(t, uint64(2), c.Stats().Transcripts.Computes)
}

func TestPipelineCache_CallerCancelDoesNotAbortSharedWork(t *testing.T) {
	c := newUnboundedCache(t)
	release := make(chan struct{})
	var sawCancel atomic.Bool

	fetch := func(ctx context.Context) (*TranscriptDocument, error) {
		<-release
		sawCancel.Store(ctx.Err() != nil)
		return &TranscriptDocument{VideoID: "abc", Text: "shared"}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.Transcript(ctx, "abc", fetch)
		errc <- err
	}()

	waiter := make(chan *TranscriptDocument, 1)
	go func() {
		time.Sleep(20 * time.Millisecond)
		doc, _ := c.Transcript(context.Background(), "abc", fetch)
		waiter <- doc
	}()

	time.Sleep(40 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	close(release)
	doc := <-waiter
	require.NotNil(t, doc)
	assert.Equal(t, "shared", doc.Text)
	assert.False(t, sawCancel.Load())
}

func TestPipelineCache_EvictionClosesIndex(t *testing.T) {
	c, err := NewPipelineCache(cache.Config{Policy: cache.PolicyLRU, Capacity: 1}, nil, metrics.New())
	require.NoError(t, err)

	first, firstVI := newTestIndex(t, "one")
	second, secondVI := newTestIndex(t, "two")

	_, err = c.Index(context.Background(), "one", func(context.Context) (*Index, error) { return first, nil })
	require.NoError(t, err)
	_, err = c.Index(context.Background(), "two", func(context.Context) (*Index, error) { return second, nil })
	require.NoError(t, err)

	assert.Eventually(t, firstVI.closed.Load, time.Second, 5*time.Millisecond)
	assert.False(t, secondVI.closed.Load())
	assert.Equal(t, uint64(1), c.Stats().Indexes.Evictions)
	assert.Equal(t, 1, c.Stats().Indexes.Entries)

	require.NoError(t, c.Close(context.Background()))
	assert.True(t, secondVI.closed.Load())
	assert.Equal(t, 0, c.Stats().Indexes.Entries)
}

func TestPipelineCache_TTLPurgesIdleEntries(t *testing.T) {
	c, err := NewPipelineCache(cache.Config{Policy: cache.PolicyLRU, TTL: 10 * time.Millisecond}, nil, metrics.New())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	const n = 50
	closables := make([]*closableIndex, 0, n)
	for i := 0; i < n; i++ {
		id := VideoID(fmt.Sprintf("video-%02d", i))
		idx, ci := newTestIndex(t, id)
		closables = append(closables, ci)

		_, err := c.Index(context.Background(), id, func(context.Context) (*Index, error) { return idx, nil })
		require.NoError(t, err)
		_, err = c.Transcript(context.Background(), id, func(context.Context) (*TranscriptDocument, error) {
			return &TranscriptDocument{VideoID: id, Text: "hello"}, nil
		})
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool {
		st := c.Stats()
		return st.Indexes.Entries == 0 && st.Transcripts.Entries == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		for _, ci := range closables {
			if !ci.closed.Load() {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)

	st := c.Stats()
	assert.Equal(t, uint64(n), st.Indexes.Evictions)
	assert.Equal(t, uint64(n), st.Transcripts.Evictions)
}

func TestPipelineCache_CloseStopsJanitor(t *testing.T) {
	c, err := NewPipelineCache(cache.Config{Policy: cache.PolicyLRU, TTL: time.Hour}, nil, metrics.New())
	require.NoError(t, err)

	idx, ci := newTestIndex(t, "abc")
	_, err = c.Index(context.Background(), "abc", func(context.Context) (*Index, error) { return idx, nil })
	require.NoError(t, err)

	require.NoError(t, c.Close(context.Background()))
	assert.True(t, ci.closed.Load())
	assert.Equal(t, 0, c.Stats().Indexes.Entries)
	require.NoError(t, c.Close(context.Background()))
}

func TestPurgeInterval(t *testing.T) {
	assert.Equal(t, 5*time.Millisecond, purgeInterval(10*time.Millisecond))
	assert.Equal(t, time.Millisecond, purgeInterval(time.Microsecond))
	assert.Equal(t, time.Minute, purgeInterval(24*time.Hour))
}

func TestPipelineCache_InvalidPolicy(t *testing.T) {
	_, err := NewPipelineCache(cache.Config{Policy: "fifo"}, nil, nil)
	assert.Error(t, err)
}

func TestPipelineCache_TranscriptStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l2 := store.NewRedisTranscriptStore(client, "videoqa:", time.Hour)

	m := metrics.New()
	first, err := NewPipelineCache(cache.Config{}, l2, m)
	require.NoError(t, err)

	var calls atomic.Int64
	fetch := func(context.Context) (*TranscriptDocument, error) {
		calls.Add(1)
		return &TranscriptDocument{VideoID: "abc", Language: "en", Text: "from provider"}, nil
	}
	_, err = first.Transcript(context.Background(), "abc", fetch)
	require.NoError(t, err)
	assert.True(t, mr.Exists("videoqa:transcript:abc"))

	// 新进程只有二级缓存
	second, err := NewPipelineCache(cache.Config{}, l2, m)
	require.NoError(t, err)
	doc, err := second.Transcript(context.Background(), "abc", fetch)
	require.NoError(t, err)
	assert.Equal(t, "from provider", doc.Text)
	assert.Equal(t, VideoID("abc"), doc.VideoID)
	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, uint64(1), m.Snapshot().Transcripts.StoreHits)
}

func TestPipelineCache_TranscriptStoreDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	c, err := NewPipelineCache(cache.Config{}, store.NewRedisTranscriptStore(client, "videoqa:", time.Hour), metrics.New())
	require.NoError(t, err)

	doc, err := c.Transcript(context.Background(), "abc", func(context.Context) (*TranscriptDocument, error) {
		return &TranscriptDocument{VideoID: "abc", Text: "ok"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", doc.Text)
}
