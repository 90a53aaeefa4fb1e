package biz

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"golang.org/x/sync/singleflight"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/videoqa/internal/videoqa/metrics"
	"github.com/kart-io/videoqa/internal/videoqa/store"
	"github.com/kart-io/videoqa/pkg/cache"
)

// indexCloseTimeout 限制淘汰索引时释放外部资源的耗时。
const indexCloseTimeout = 30 * time.Second

const (
	minPurgeInterval = time.Millisecond
	maxPurgeInterval = time.Minute
)

// MappingStats 单个映射的缓存统计。
type MappingStats struct {
	Entries   int    `json:"entries"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Computes  uint64 `json:"computes"`
	Evictions uint64 `json:"evictions"`
}

// CacheStats 管道缓存统计。
type CacheStats struct {
	Transcripts MappingStats `json:"transcripts"`
	Indexes     MappingStats `json:"indexes"`
}

type mappingCounters struct {
	hits      atomic.Uint64
	misses    atomic.Uint64
	computes  atomic.Uint64
	evictions atomic.Uint64
}

func (m *mappingCounters) snapshot(entries int) MappingStats {
	return MappingStats{
		Entries:   entries,
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Computes:  m.computes.Load(),
		Evictions: m.evictions.Load(),
	}
}

// PipelineCache 按视频 ID 缓存字幕与索引。
//
// 两个映射相互独立，每个 ID 在并发访问下至多计算一次：同一 ID 的并发请求
// 共享一次计算，失败不缓存。共享计算不随单个调用方取消，调用方取消后
// 立即返回，其余等待者仍能拿到结果。
type PipelineCache struct {
	transcripts cache.Cache[VideoID, *TranscriptDocument]
	indexes     cache.Cache[VideoID, *Index]

	transcriptFlight singleflight.Group
	indexFlight      singleflight.Group

	transcriptStats mappingCounters
	indexStats      mappingCounters

	// l2 字幕二级缓存，可以为 nil。
	l2      store.TranscriptStore
	metrics *metrics.Metrics

	closing atomic.Bool
	closers sync.WaitGroup

	// drained 关闭期间被淘汰的索引，由 Close 统一释放。
	drainMu sync.Mutex
	drained []*Index

	stopJanitor chan struct{}
	stopOnce    sync.Once
	janitor     sync.WaitGroup
}

// NewPipelineCache 按 cfg 创建两个映射。l2 为 nil 时只使用进程内缓存。
func NewPipelineCache(cfg cache.Config, l2 store.TranscriptStore, m *metrics.Metrics) (*PipelineCache, error) {
	if m == nil {
		m = metrics.Default()
	}
	c := &PipelineCache{l2: l2, metrics: m}

	transcripts, err := cache.New[VideoID, *TranscriptDocument](cfg, func(VideoID, *TranscriptDocument, cache.EvictReason) {
		c.transcriptStats.evictions.Add(1)
	})
	if err != nil {
		return nil, err
	}
	indexes, err := cache.New[VideoID, *Index](cfg, c.onIndexEvicted)
	if err != nil {
		return nil, err
	}

	c.transcripts = transcripts
	c.indexes = indexes

	if cfg.TTL > 0 {
		c.startJanitor(purgeInterval(cfg.TTL))
	}
	return c, nil
}

// purgeInterval 取 TTL 的一半，限制在 [minPurgeInterval, maxPurgeInterval]。
func purgeInterval(ttl time.Duration) time.Duration {
	d := ttl / 2
	if d < minPurgeInterval {
		return minPurgeInterval
	}
	if d > maxPurgeInterval {
		return maxPurgeInterval
	}
	return d
}

// startJanitor 周期性清理过期条目。过期条目否则只会在同一 ID 再次被
// 访问时移除，不再被访问的视频会一直占用内存和外部集合。
func (c *PipelineCache) startJanitor(interval time.Duration) {
	var purgers []cache.Purger
	if p, ok := c.transcripts.(cache.Purger); ok {
		purgers = append(purgers, p)
	}
	if p, ok := c.indexes.(cache.Purger); ok {
		purgers = append(purgers, p)
	}
	if len(purgers) == 0 {
		return
	}

	c.stopJanitor = make(chan struct{})
	c.janitor.Add(1)
	go func() {
		defer c.janitor.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-c.stopJanitor:
				return
			case <-ticker.C:
				for _, p := range purgers {
					p.PurgeExpired()
				}
			}
		}
	}()
}

// onIndexEvicted 异步释放被淘汰索引的外部资源（如 Milvus 集合）。
func (c *PipelineCache) onIndexEvicted(id VideoID, idx *Index, reason cache.EvictReason) {
	c.indexStats.evictions.Add(1)
	if c.closing.Load() {
		c.drainMu.Lock()
		c.drained = append(c.drained, idx)
		c.drainMu.Unlock()
		return
	}

	c.closers.Add(1)
	go func() {
		defer c.closers.Done()
		ctx, cancel := context.WithTimeout(context.Background(), indexCloseTimeout)
		defer cancel()
		if err := idx.Close(ctx); err != nil {
			logger.Warnw("failed to close evicted index", "video_id", id, "reason", reason.String(), "error", err)
			return
		}
		logger.Debugw("index evicted", "video_id", id, "reason", reason.String())
	}()
}

// Transcript 返回缓存的字幕，未命中时依次查询二级缓存并调用 fetch。
func (c *PipelineCache) Transcript(ctx context.Context, id VideoID, fetch func(context.Context) (*TranscriptDocument, error)) (*TranscriptDocument, error) {
	return getOrCompute(ctx, c.transcripts, &c.transcriptFlight, &c.transcriptStats, id, func(ctx context.Context) (*TranscriptDocument, error) {
		if doc := c.loadTranscript(ctx, id); doc != nil {
			return doc, nil
		}

		c.transcriptStats.computes.Add(1)
		doc, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.storeTranscript(ctx, doc)
		return doc, nil
	})
}

func (c *PipelineCache) loadTranscript(ctx context.Context, id VideoID) *TranscriptDocument {
	if c.l2 == nil {
		return nil
	}
	rec, err := c.l2.Get(ctx, string(id))
	if err != nil {
		logger.Warnw("transcript store read failed", "video_id", id, "error", err)
		return nil
	}
	if rec == nil {
		return nil
	}
	c.metrics.RecordTranscriptStoreHit()
	return &TranscriptDocument{VideoID: id, Language: rec.Language, Text: rec.Text}
}

func (c *PipelineCache) storeTranscript(ctx context.Context, doc *TranscriptDocument) {
	if c.l2 == nil {
		return
	}
	rec := &store.TranscriptRecord{VideoID: string(doc.VideoID), Language: doc.Language, Text: doc.Text}
	if err := c.l2.Put(ctx, rec); err != nil {
		logger.Warnw("transcript store write failed", "video_id", doc.VideoID, "error", err)
	}
}

// Index 返回缓存的索引，未命中时调用 build。
func (c *PipelineCache) Index(ctx context.Context, id VideoID, build func(context.Context) (*Index, error)) (*Index, error) {
	return getOrCompute(ctx, c.indexes, &c.indexFlight, &c.indexStats, id, func(ctx context.Context) (*Index, error) {
		c.indexStats.computes.Add(1)
		return build(ctx)
	})
}

func getOrCompute[V any](
	ctx context.Context,
	m cache.Cache[VideoID, V],
	group *singleflight.Group,
	stats *mappingCounters,
	id VideoID,
	compute func(context.Context) (V, error),
) (V, error) {
	if v, ok := m.Get(id); ok {
		stats.hits.Add(1)
		return v, nil
	}
	stats.misses.Add(1)

	detached := context.WithoutCancel(ctx)
	ch := group.DoChan(string(id), func() (any, error) {
		// 上一轮计算可能刚刚写入
		if v, ok := m.Get(id); ok {
			return v, nil
		}
		v, err := compute(detached)
		if err != nil {
			return nil, err
		}
		m.Set(id, v)
		return v, nil
	})

	var zero V
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Stats 返回两个映射的计数。
func (c *PipelineCache) Stats() CacheStats {
	return CacheStats{
		Transcripts: c.transcriptStats.snapshot(c.transcripts.Len()),
		Indexes:     c.indexStats.snapshot(c.indexes.Len()),
	}
}

// Close 停止过期清理，同步释放全部索引并清空缓存。
func (c *PipelineCache) Close(ctx context.Context) error {
	c.closing.Store(true)
	c.stopOnce.Do(func() {
		if c.stopJanitor != nil {
			close(c.stopJanitor)
		}
	})
	c.janitor.Wait()

	pending := make(map[*Index]struct{})
	for _, id := range c.indexes.Keys() {
		if idx, ok := c.indexes.Get(id); ok {
			pending[idx] = struct{}{}
		}
	}
	c.indexes.Clear()
	c.transcripts.Clear()

	c.drainMu.Lock()
	for _, idx := range c.drained {
		pending[idx] = struct{}{}
	}
	c.drained = nil
	c.drainMu.Unlock()

	var errs []error
	for idx := range pending {
		if err := idx.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers.Wait()
	return utilerrors.NewAggregate(errs)
}
