package store

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/kart-io/videoqa/pkg/component/milvus"
)

// BackendMilvus is the name of the Milvus backend.
const BackendMilvus = "milvus"

// milvusClient is the subset of the Milvus component used by the backend.
type milvusClient interface {
	EnsurePassageCollection(ctx context.Context, name string, dim int) error
	InsertPassages(ctx context.Context, name string, texts []string, vectors [][]float32) error
	SearchPassages(ctx context.Context, name string, vector []float32, topK int) ([]milvus.PassageHit, error)
	CountPassages(ctx context.Context, name string) (int64, error)
	DropCollection(ctx context.Context, name string) error
}

type milvusBackend struct {
	client milvusClient
	prefix string
	dim    int
}

// NewMilvusBackend returns a backend that stores each video in its own
// collection.
func NewMilvusBackend(client *milvus.Client) Backend {
	opts := client.Options()
	return newMilvusBackend(client, opts.CollectionPrefix, opts.Dim)
}

func newMilvusBackend(client milvusClient, prefix string, dim int) *milvusBackend {
	return &milvusBackend{client: client, prefix: prefix, dim: dim}
}

func (b *milvusBackend) Name() string { return BackendMilvus }

func (b *milvusBackend) Build(ctx context.Context, videoID string, texts []string, vectors [][]float32) (VectorIndex, error) {
	if len(texts) != len(vectors) {
		return nil, fmt.Errorf("passage count %d does not match vector count %d", len(texts), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != b.dim {
			return nil, fmt.Errorf("vector %d has dimension %d, collection expects %d", i, len(v), b.dim)
		}
	}

	name := milvus.CollectionName(b.prefix, videoID)
	if err := b.client.EnsurePassageCollection(ctx, name, b.dim); err != nil {
		return nil, err
	}

	// 进程重启后集合可能残留旧数据，重建保证段落编号与本次切分一致
	n, err := b.client.CountPassages(ctx, name)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		logger.Infow("dropping stale passage collection", "collection", name, "rows", n)
		if err := b.client.DropCollection(ctx, name); err != nil {
			return nil, err
		}
		if err := b.client.EnsurePassageCollection(ctx, name, b.dim); err != nil {
			return nil, err
		}
	}

	if err := b.client.InsertPassages(ctx, name, texts, vectors); err != nil {
		return nil, err
	}
	return &milvusIndex{client: b.client, name: name, size: len(texts)}, nil
}

type milvusIndex struct {
	client milvusClient
	name   string
	size   int
}

func (m *milvusIndex) Retrieve(ctx context.Context, query []float32, k int) ([]Hit, error) {
	k = clampK(k, m.size)
	if k == 0 {
		return []Hit{}, nil
	}

	res, err := m.client.SearchPassages(ctx, m.name, query, k)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(res))
	for i, r := range res {
		hits[i] = Hit{Index: r.Idx, Text: r.Text, Score: float64(r.Score)}
	}
	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *milvusIndex) Len() int { return m.size }

// Close drops the collection.
func (m *milvusIndex) Close(ctx context.Context) error {
	return m.client.DropCollection(ctx, m.name)
}
