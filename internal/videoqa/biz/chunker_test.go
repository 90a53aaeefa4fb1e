package biz

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/videoqa/internal/pkg/textutil"
)

func TestNewChunker_Validation(t *testing.T) {
	_, err := NewChunker(0, 0)
	assert.Error(t, err)
	_, err = NewChunker(100, 100)
	assert.Error(t, err)
	_, err = NewChunker(100, -1)
	assert.Error(t, err)

	c, err := NewChunker(100, 20)
	require.NoError(t, err)
	assert.Equal(t, 100, c.Size())
	assert.Equal(t, 20, c.Overlap())
}

func TestChunker_Split(t *testing.T) {
	tests := []struct {
		name      string
		length    int
		size      int
		overlap   int
		wantCount int
	}{
		{"empty", 0, 1000, 200, 0},
		{"shorter than window", 10, 1000, 200, 1},
		{"exactly one window", 1000, 1000, 200, 1},
		{"one rune over", 1001, 1000, 200, 2},
		{"default config", 2600, 1000, 200, 3},
		{"uneven tail", 10, 4, 1, 3},
		{"no overlap", 9, 3, 0, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := makeDoc(tt.length)
			c, err := NewChunker(tt.size, tt.overlap)
			require.NoError(t, err)

			passages := c.Split(doc)
			require.Len(t, passages, tt.wantCount)
			if tt.length > tt.size {
				want := (tt.length - tt.overlap + (tt.size - tt.overlap) - 1) / (tt.size - tt.overlap)
				assert.Equal(t, want, len(passages))
			}

			texts := make([]string, len(passages))
			for i, p := range passages {
				assert.Equal(t, i, p.Index)
				assert.LessOrEqual(t, len([]rune(p.Text)), tt.size)
				texts[i] = p.Text
			}
			assert.Equal(t, doc, textutil.MergeChunks(texts, tt.overlap))
			assert.Equal(t, passages, c.Split(doc), "split is deterministic")
		})
	}
}

func TestChunker_SplitRunes(t *testing.T) {
	c, err := NewChunker(4, 2)
	require.NoError(t, err)

	doc := "日本語の字幕です"
	passages := c.Split(doc)
	require.Len(t, passages, 3)
	assert.Equal(t, "日本語の", passages[0].Text)
	assert.Equal(t, "字幕です", passages[2].Text)
}

func makeDoc(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(byte('a' + i%26))
	}
	return b.String()
}
