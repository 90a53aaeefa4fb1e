package store

import (
	"context"
	"fmt"

	"github.com/kart-io/videoqa/internal/pkg/textutil"
)

// BackendMemory is the name of the in-process backend.
const BackendMemory = "memory"

type memoryBackend struct{}

// NewMemoryBackend returns a backend that keeps vectors in process and
// searches them exhaustively.
func NewMemoryBackend() Backend {
	return memoryBackend{}
}

func (memoryBackend) Name() string { return BackendMemory }

func (memoryBackend) Build(_ context.Context, _ string, texts []string, vectors [][]float32) (VectorIndex, error) {
	if len(texts) != len(vectors) {
		return nil, fmt.Errorf("passage count %d does not match vector count %d", len(texts), len(vectors))
	}
	return &MemoryIndex{texts: texts, vectors: vectors}, nil
}

// MemoryIndex is an exact cosine-similarity index.
type MemoryIndex struct {
	texts   []string
	vectors [][]float32
}

// Retrieve scores every passage against query.
func (m *MemoryIndex) Retrieve(_ context.Context, query []float32, k int) ([]Hit, error) {
	k = clampK(k, len(m.texts))
	if k == 0 {
		return []Hit{}, nil
	}

	hits := make([]Hit, len(m.texts))
	for i, v := range m.vectors {
		hits[i] = Hit{
			Index: i,
			Text:  m.texts[i],
			Score: textutil.CosineSimilarity(query, v),
		}
	}
	sortHits(hits)
	return hits[:k], nil
}

// Len returns the number of passages.
func (m *MemoryIndex) Len() int { return len(m.texts) }

// Close is a no-op.
func (m *MemoryIndex) Close(context.Context) error { return nil }
