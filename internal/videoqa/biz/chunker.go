package biz

import (
	"fmt"

	"github.com/kart-io/videoqa/internal/pkg/textutil"
)

// 默认切分参数。
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Passage 字幕中的一个连续片段。
type Passage struct {
	// Index 段落在切分序列中的位置。
	Index int
	// Text 段落内容。
	Text string
}

// Chunker 按字符滑动窗口切分字幕。
type Chunker struct {
	size    int
	overlap int
}

// NewChunker 创建切分器，要求 0 <= overlap < size。
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the window length.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the characters shared by adjacent passages.
func (c *Chunker) Overlap() int { return c.overlap }

// Split 切分文档。空文档返回空切片，结果只取决于输入与参数。
func (c *Chunker) Split(doc string) []Passage {
	chunks := textutil.SplitIntoChunks(doc, c.size, c.overlap)
	passages := make([]Passage, len(chunks))
	for i, text := range chunks {
		passages[i] = Passage{Index: i, Text: text}
	}
	return passages
}
