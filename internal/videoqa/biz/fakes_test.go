package biz

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kart-io/videoqa/internal/videoqa/metrics"
	"github.com/kart-io/videoqa/internal/videoqa/store"
	"github.com/kart-io/videoqa/pkg/cache"
	"github.com/kart-io/videoqa/pkg/infra/pool"
	"github.com/kart-io/videoqa/pkg/llm"
	"github.com/kart-io/videoqa/pkg/youtube"
)

const embedDim = 64

// bagOfWords 把文本映射为词袋向量，相同词汇的文本相似度更高。
func bagOfWords(text string) []float32 {
	v := make([]float32, embedDim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,?!'\"")
		if w == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%embedDim]++
	}
	return v
}

type fakeEmbedder struct {
	mu      sync.Mutex
	batches [][]string
	singles atomic.Int64
	err     error
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.batches = append(e.batches, append([]string(nil), texts...))
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = bagOfWords(t)
	}
	return out, nil
}

func (e *fakeEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	e.singles.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	return bagOfWords(text), nil
}

func (e *fakeEmbedder) Name() string { return "fake-embed" }

func (e *fakeEmbedder) batchCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.batches)
}

// faithfulChat 只在上下文提到巴黎时回答巴黎，否则给出兜底句。
type faithfulChat struct {
	answer  string
	err     error
	prompts []string
	mu      sync.Mutex
}

func (c *faithfulChat) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	return c.Generate(ctx, messages[len(messages)-1].Content, "")
}

func (c *faithfulChat) Generate(_ context.Context, prompt, _ string) (string, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, prompt)
	c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	if c.answer != "" {
		return c.answer, nil
	}
	ctxPart := prompt[strings.Index(prompt, "CONTEXT:"):strings.Index(prompt, "QUESTION:")]
	if strings.Contains(ctxPart, "Paris") {
		return "Paris is the capital of France.", nil
	}
	return FallbackAnswer, nil
}

func (c *faithfulChat) Name() string { return "fake-chat" }

// streamingChat 逐段输出 chunks，最后可选地返回 err。
type streamingChat struct {
	faithfulChat
	chunks []string
	err    error
}

func (c *streamingChat) GenerateStream(ctx context.Context, _, _ string) (<-chan string, <-chan error) {
	out := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		for _, chunk := range c.chunks {
			select {
			case out <- chunk:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		if c.err != nil {
			errc <- c.err
		}
	}()
	return out, errc
}

type fakeSource struct {
	text  string
	err   error
	delay time.Duration
	calls atomic.Int64
}

func (s *fakeSource) Fetch(ctx context.Context, id VideoID) (*TranscriptDocument, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &TranscriptDocument{VideoID: id, Language: "en", Text: s.text}, nil
}

type fakeMetadata struct {
	title string
	delay time.Duration
	calls atomic.Int64
}

func (m *fakeMetadata) Fetch(_ context.Context, videoID string) youtube.Metadata {
	m.calls.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	thumb := m.DefaultThumbnail(videoID)
	if m.title == "" {
		return youtube.Metadata{ThumbnailURL: &thumb}
	}
	title := m.title
	return youtube.Metadata{Title: &title, ThumbnailURL: &thumb}
}

func (m *fakeMetadata) DefaultThumbnail(videoID string) string {
	return "https://i.ytimg.com/vi/" + videoID + "/hqdefault.jpg"
}

// closableIndex 记录 Close 调用的向量索引。
type closableIndex struct {
	store.VectorIndex
	closed atomic.Bool
}

func (c *closableIndex) Close(ctx context.Context) error {
	c.closed.Store(true)
	return c.VectorIndex.Close(ctx)
}

func newTestPool(t *testing.T) *pool.Pool {
	t.Helper()
	p, err := pool.NewPool("test-embedding", pool.EmbeddingPool, pool.EmbeddingPoolConfig())
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

type testEnv struct {
	source   *fakeSource
	metadata *fakeMetadata
	embedder *fakeEmbedder
	chat     llm.ChatProvider
	metrics  *metrics.Metrics
	cache    *PipelineCache
	service  *VideoQAService
}

func newTestEnv(t *testing.T, transcript string, chat llm.ChatProvider) *testEnv {
	t.Helper()
	env := &testEnv{
		source:   &fakeSource{text: transcript},
		metadata: &fakeMetadata{title: "Capitals of Europe"},
		embedder: &fakeEmbedder{},
		chat:     chat,
		metrics:  metrics.New(),
	}

	pc, err := NewPipelineCache(cache.Config{Policy: cache.PolicyUnbounded}, nil, env.metrics)
	require.NoError(t, err)
	env.cache = pc

	chunker, err := NewChunker(DefaultChunkSize, DefaultChunkOverlap)
	require.NoError(t, err)

	env.service = NewVideoQAService(Components{
		Source:    env.source,
		Metadata:  env.metadata,
		Chunker:   chunker,
		Indexer:   NewIndexer(env.embedder, store.NewMemoryBackend(), newTestPool(t), nil, env.metrics),
		Generator: NewGenerator(chat, nil, env.metrics),
		Cache:     pc,
		Metrics:   env.metrics,
	}, &ServiceConfig{MetadataWait: time.Second, StreamMetadataWait: time.Second})
	return env
}

func collect(tokens <-chan Token) []Token {
	var out []Token
	for tok := range tokens {
		out = append(out, tok)
	}
	return out
}
