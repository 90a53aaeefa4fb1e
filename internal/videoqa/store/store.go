package store

import (
	"context"
	"sort"
)

// Hit 表示一条检索命中。
type Hit struct {
	// Index 段落在切分序列中的位置。
	Index int
	// Text 段落内容。
	Text string
	// Score 与查询的余弦相似度，越大越相似。
	Score float64
}

// VectorIndex 单个视频的段落向量索引。
// 索引构建完成后才对外可见，构建后只读。
type VectorIndex interface {
	// Retrieve 返回与 query 最相似的至多 k 个段落，按相似度降序，
	// 相似度相同时按段落位置升序。
	Retrieve(ctx context.Context, query []float32, k int) ([]Hit, error)

	// Len 返回索引中的段落数。
	Len() int

	// Close 释放索引占用的外部资源。
	Close(ctx context.Context) error
}

// Backend 为视频构建向量索引。
type Backend interface {
	// Build 以 texts[i] 与 vectors[i] 作为第 i 个段落建立索引。
	Build(ctx context.Context, videoID string, texts []string, vectors [][]float32) (VectorIndex, error)

	// Name 返回后端名称。
	Name() string
}

// TranscriptRecord 持久化的字幕文档。
type TranscriptRecord struct {
	VideoID  string `json:"video_id"`
	Language string `json:"language"`
	Text     string `json:"text"`
}

// TranscriptStore 字幕二级缓存。
type TranscriptStore interface {
	// Get 返回缓存的字幕，未命中时返回 (nil, nil)。
	Get(ctx context.Context, videoID string) (*TranscriptRecord, error)

	// Put 写入字幕。
	Put(ctx context.Context, rec *TranscriptRecord) error
}

// sortHits orders hits by score descending, then by passage index.
func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Index < hits[j].Index
	})
}

func clampK(k, n int) int {
	if k > n {
		return n
	}
	if k < 0 {
		return 0
	}
	return k
}
