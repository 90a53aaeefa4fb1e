package textutil_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/videoqa/internal/pkg/textutil"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
	}{
		{"相同向量", []float32{1, 0, 0}, []float32{1, 0, 0}, 1.0},
		{"正交向量", []float32{1, 0, 0}, []float32{0, 1, 0}, 0.0},
		{"相反向量", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1.0},
		{"空向量", []float32{}, []float32{}, 0.0},
		{"长度不匹配", []float32{1, 2}, []float32{1}, 0.0},
		{"零向量", []float32{0, 0}, []float32{1, 1}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, textutil.CosineSimilarity(tt.a, tt.b), 0.0001)
		})
	}
}

func TestHashString(t *testing.T) {
	assert.Equal(t, textutil.HashString("test"), textutil.HashString("test"))
	assert.NotEqual(t, textutil.HashString("test"), textutil.HashString("different"))
	assert.Len(t, textutil.HashString("test"), 64)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "hello", textutil.TruncateString("hello", 10))
	assert.Equal(t, "hello", textutil.TruncateString("hello world", 5))
	assert.Equal(t, "你好", textutil.TruncateString("你好世界", 2))
}

func TestSplitIntoChunks_Count(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		chunkSize int
		overlap   int
		expected  int
	}{
		{"空文本", "", 10, 2, 0},
		{"短文本无需分割", "hello", 10, 2, 1},
		{"等于块大小", "hello", 5, 2, 1},
		{"正常分割", "hello world test", 5, 2, 5},
		{"无重叠分割", "abcdefghij", 5, 0, 2},
		{"默认配置", strings.Repeat("a", 2500), 1000, 200, 3},
		{"刚好多一个字符", strings.Repeat("a", 1001), 1000, 200, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, textutil.SplitIntoChunks(tt.text, tt.chunkSize, tt.overlap), tt.expected)
		})
	}
}

func TestSplitIntoChunks_Reconstruct(t *testing.T) {
	text := "Paris is the capital of France. Berlin is the capital of Germany. 東京は日本の首都です。"

	for _, cfg := range []struct{ size, overlap int }{{10, 3}, {7, 0}, {20, 19}, {1000, 200}} {
		chunks := textutil.SplitIntoChunks(text, cfg.size, cfg.overlap)
		require.NotEmpty(t, chunks)
		for _, c := range chunks {
			assert.LessOrEqual(t, len([]rune(c)), cfg.size)
		}
		assert.Equal(t, text, textutil.MergeChunks(chunks, cfg.overlap), "size=%d overlap=%d", cfg.size, cfg.overlap)
	}
}

func TestSplitIntoChunks_Deterministic(t *testing.T) {
	text := strings.Repeat("the quick brown fox ", 100)
	assert.Equal(t,
		textutil.SplitIntoChunks(text, 50, 10),
		textutil.SplitIntoChunks(text, 50, 10))
}
