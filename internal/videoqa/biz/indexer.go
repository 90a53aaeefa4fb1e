package biz

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/videoqa/internal/videoqa/metrics"
	"github.com/kart-io/videoqa/internal/videoqa/store"
	"github.com/kart-io/videoqa/pkg/infra/pool"
	"github.com/kart-io/videoqa/pkg/llm"
	"github.com/kart-io/videoqa/pkg/utils/errors"
)

// DefaultTopK 默认检索段落数。
const DefaultTopK = 4

// IndexerConfig 索引器配置。
type IndexerConfig struct {
	// BatchSize 每次向量化请求的段落数。
	BatchSize int
	// Concurrency 单次构建中同时进行的向量化请求数。
	Concurrency int
	// TopK 检索段落数。
	TopK int
}

func (c *IndexerConfig) complete() *IndexerConfig {
	out := IndexerConfig{BatchSize: 32, Concurrency: 4, TopK: DefaultTopK}
	if c == nil {
		return &out
	}
	if c.BatchSize > 0 {
		out.BatchSize = c.BatchSize
	}
	if c.Concurrency > 0 {
		out.Concurrency = c.Concurrency
	}
	if c.TopK > 0 {
		out.TopK = c.TopK
	}
	return &out
}

// Indexer 负责段落向量化与索引构建。
type Indexer struct {
	embedder llm.EmbeddingProvider
	backend  store.Backend
	pool     *pool.Pool
	config   *IndexerConfig
	metrics  *metrics.Metrics
}

// NewIndexer 创建索引器。p 为 nil 时批次在调用方 goroutine 中顺序执行。
func NewIndexer(embedder llm.EmbeddingProvider, backend store.Backend, p *pool.Pool, config *IndexerConfig, m *metrics.Metrics) *Indexer {
	if m == nil {
		m = metrics.Default()
	}
	return &Indexer{
		embedder: embedder,
		backend:  backend,
		pool:     p,
		config:   config.complete(),
		metrics:  m,
	}
}

// Build 向量化全部段落并建立索引。所有批次成功后索引才返回给调用方。
func (i *Indexer) Build(ctx context.Context, id VideoID, passages []Passage) (*Index, error) {
	start := time.Now()
	idx, err := i.build(ctx, id, passages)
	i.metrics.RecordIndexBuild(time.Since(start), len(passages), err)
	if err != nil {
		logger.Errorw("index build failed", "video_id", id, "passages", len(passages), "error", err)
		return nil, err
	}

	logger.Infow("index built",
		"video_id", id,
		"backend", i.backend.Name(),
		"passages", len(passages),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return idx, nil
}

func (i *Indexer) build(ctx context.Context, id VideoID, passages []Passage) (*Index, error) {
	texts := make([]string, len(passages))
	for n, p := range passages {
		texts[n] = p.Text
	}

	vectors, err := i.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	// 空字幕不占用外部存储
	backend := i.backend
	if len(texts) == 0 {
		backend = store.NewMemoryBackend()
	}
	vi, err := backend.Build(ctx, string(id), texts, vectors)
	if err != nil {
		if backend.Name() == store.BackendMemory {
			return nil, errors.ErrIndexBuild.WithCause(err)
		}
		return nil, errors.Transport(errors.ErrVectorStore, backend.Name(), err)
	}

	return &Index{
		videoID:  id,
		vectors:  vi,
		embedder: i.embedder,
		topK:     i.config.TopK,
		metrics:  i.metrics,
	}, nil
}

// embedAll 按批次向量化，批次之间并发，并发度不超过 Concurrency。
func (i *Indexer) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	if len(texts) == 0 {
		return vectors, nil
	}

	var batches [][2]int
	for start := 0; start < len(texts); start += i.config.BatchSize {
		end := start + i.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, [2]int{start, end})
	}

	embedBatch := func(ctx context.Context, b [2]int) error {
		out, err := i.embedder.Embed(ctx, texts[b[0]:b[1]])
		if err != nil {
			return errors.Transport(errors.ErrEmbedding, i.embedder.Name(), err)
		}
		if len(out) != b[1]-b[0] {
			return errors.ErrEmbedding.WithMessagef("%s: %s returned %d vectors for %d texts",
				errors.ErrEmbedding.MessageEN, i.embedder.Name(), len(out), b[1]-b[0])
		}
		copy(vectors[b[0]:b[1]], out)
		return nil
	}

	workers := i.config.Concurrency
	if workers > len(batches) {
		workers = len(batches)
	}
	tasks := make([]func(context.Context) error, workers)
	for w := range tasks {
		tasks[w] = func(ctx context.Context) error {
			for n := w; n < len(batches); n += workers {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := embedBatch(ctx, batches[n]); err != nil {
					return err
				}
			}
			return nil
		}
	}

	var err error
	if i.pool == nil {
		for _, task := range tasks {
			if err = task(ctx); err != nil {
				break
			}
		}
	} else {
		err = i.pool.RunAll(ctx, tasks)
	}
	if err != nil {
		return nil, errors.Transport(errors.ErrEmbedding, i.embedder.Name(), err)
	}
	return vectors, nil
}

// RetrievalResult 按相似度降序排列的段落，同分时按段落位置排序。
type RetrievalResult []Passage

// Index 单个视频的已构建索引。
type Index struct {
	videoID  VideoID
	vectors  store.VectorIndex
	embedder llm.EmbeddingProvider
	topK     int
	metrics  *metrics.Metrics
}

// VideoID 返回索引所属视频。
func (x *Index) VideoID() VideoID { return x.videoID }

// Len 返回段落数。
func (x *Index) Len() int { return x.vectors.Len() }

// Close 释放索引的外部资源。
func (x *Index) Close(ctx context.Context) error { return x.vectors.Close(ctx) }

// Retrieve 返回与问题最相似的 min(k, Len()) 个段落。k <= 0 时使用默认值。
func (x *Index) Retrieve(ctx context.Context, question string, k int) (RetrievalResult, error) {
	if k <= 0 {
		k = x.topK
	}
	if x.vectors.Len() == 0 {
		return RetrievalResult{}, nil
	}

	start := time.Now()
	result, err := x.retrieve(ctx, question, k)
	x.metrics.RecordRetrieval(time.Since(start), err)
	return result, err
}

func (x *Index) retrieve(ctx context.Context, question string, k int) (RetrievalResult, error) {
	query, err := x.embedder.EmbedSingle(ctx, question)
	if err != nil {
		return nil, errors.Transport(errors.ErrEmbedding, x.embedder.Name(), err)
	}

	hits, err := x.vectors.Retrieve(ctx, query, k)
	if err != nil {
		return nil, errors.Transport(errors.ErrVectorStore, "vector index", err)
	}

	result := make(RetrievalResult, len(hits))
	for n, h := range hits {
		result[n] = Passage{Index: h.Index, Text: h.Text}
	}
	return result, nil
}

// String implements fmt.Stringer for log fields.
func (x *Index) String() string {
	return fmt.Sprintf("index(%s, %d passages)", x.videoID, x.Len())
}
