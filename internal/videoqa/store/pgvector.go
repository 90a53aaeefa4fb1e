package store

import (
	"context"
	"fmt"

	"github.com/kart-io/videoqa/pkg/component/postgres"
)

// BackendPGVector is the name of the pgvector backend.
const BackendPGVector = "pgvector"

type pgClient interface {
	ReplacePassages(ctx context.Context, videoID string, texts []string, vectors [][]float32) error
	SearchPassages(ctx context.Context, videoID string, vector []float32, topK int) ([]postgres.PassageHit, error)
}

type pgvectorBackend struct {
	client pgClient
	dim    int
}

// NewPGVectorBackend returns a backend that keeps every video in one
// shared table.
func NewPGVectorBackend(client *postgres.Client) Backend {
	return &pgvectorBackend{client: client, dim: client.Options().Dim}
}

func (b *pgvectorBackend) Name() string { return BackendPGVector }

func (b *pgvectorBackend) Build(ctx context.Context, videoID string, texts []string, vectors [][]float32) (VectorIndex, error) {
	if len(texts) != len(vectors) {
		return nil, fmt.Errorf("passage count %d does not match vector count %d", len(texts), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != b.dim {
			return nil, fmt.Errorf("vector %d has dimension %d, table expects %d", i, len(v), b.dim)
		}
	}
	if err := b.client.ReplacePassages(ctx, videoID, texts, vectors); err != nil {
		return nil, err
	}
	return &pgvectorIndex{client: b.client, videoID: videoID, size: len(texts)}, nil
}

type pgvectorIndex struct {
	client  pgClient
	videoID string
	size    int
}

func (p *pgvectorIndex) Retrieve(ctx context.Context, query []float32, k int) ([]Hit, error) {
	k = clampK(k, p.size)
	if k == 0 {
		return []Hit{}, nil
	}

	res, err := p.client.SearchPassages(ctx, p.videoID, query, k)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(res))
	for i, r := range res {
		hits[i] = Hit{Index: r.Idx, Text: r.Text, Score: r.Score}
	}
	sortHits(hits)
	return hits, nil
}

func (p *pgvectorIndex) Len() int { return p.size }

// Close keeps the rows: the table is shared and a later rebuild replaces them.
func (p *pgvectorIndex) Close(context.Context) error { return nil }
