package videoqa

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Defaults(t *testing.T) {
	o := NewOptions()
	assert.Empty(t, o.Validate())
	assert.Equal(t, 1000, o.ChunkSize)
	assert.Equal(t, 200, o.ChunkOverlap)
	assert.Equal(t, 4, o.TopK)
	assert.Equal(t, BackendMemory, o.IndexBackend)
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"overlap equals size", func(o *Options) { o.ChunkOverlap = o.ChunkSize }},
		{"negative overlap", func(o *Options) { o.ChunkOverlap = -1 }},
		{"zero top-k", func(o *Options) { o.TopK = 0 }},
		{"unknown backend", func(o *Options) { o.IndexBackend = "faiss" }},
		{"no languages", func(o *Options) { o.Languages = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOptions()
			tt.mutate(o)
			assert.Len(t, o.Validate(), 1)
		})
	}
}

func TestOptions_Flags(t *testing.T) {
	o := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{"--videoqa.index-backend=pgvector", "--videoqa.languages=en,fr", "--videoqa.strict-video-id"}))
	assert.Equal(t, BackendPGVector, o.IndexBackend)
	assert.Equal(t, []string{"en", "fr"}, o.Languages)
	assert.True(t, o.StrictVideoID)
}
