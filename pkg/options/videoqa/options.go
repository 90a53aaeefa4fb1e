// Package videoqa provides the question answering pipeline options.
package videoqa

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/videoqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Index backends.
const (
	BackendMemory   = "memory"
	BackendMilvus   = "milvus"
	BackendPGVector = "pgvector"
)

// Options contains pipeline configuration.
type Options struct {
	// ChunkSize is the passage length in characters.
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// ChunkOverlap is the number of characters shared by adjacent passages.
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	// TopK is the number of passages retrieved per question.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// EmbedBatchSize is the number of passages per embedding request.
	EmbedBatchSize int `json:"embed-batch-size" mapstructure:"embed-batch-size"`

	// EmbedConcurrency bounds concurrent embedding requests per index build.
	EmbedConcurrency int `json:"embed-concurrency" mapstructure:"embed-concurrency"`

	// IndexBackend selects where passage vectors live.
	IndexBackend string `json:"index-backend" mapstructure:"index-backend"`

	// StrictVideoID rejects identifiers that are not 11 URL-safe characters.
	StrictVideoID bool `json:"strict-video-id" mapstructure:"strict-video-id"`

	// IncrementalStream forwards provider tokens as they arrive when the
	// chat provider supports streaming.
	IncrementalStream bool `json:"incremental-stream" mapstructure:"incremental-stream"`

	// MetadataWait is how long an answer waits for metadata after generation.
	MetadataWait time.Duration `json:"metadata-wait" mapstructure:"metadata-wait"`

	// StreamMetadataWait bounds the metadata wait before the first token of
	// a streamed answer.
	StreamMetadataWait time.Duration `json:"stream-metadata-wait" mapstructure:"stream-metadata-wait"`

	// Languages is the caption language preference order.
	Languages []string `json:"languages" mapstructure:"languages"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		ChunkSize:          1000,
		ChunkOverlap:       200,
		TopK:               4,
		EmbedBatchSize:     32,
		EmbedConcurrency:   4,
		IndexBackend:       BackendMemory,
		MetadataWait:       2 * time.Second,
		StreamMetadataWait: 300 * time.Millisecond,
		Languages:          []string{"en", "hi", "te", "ta", "ml", "kn", "bn", "mr", "gu", "pa"},
	}
}

// AddFlags adds flags for pipeline options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "videoqa."
	fs.IntVar(&o.ChunkSize, p+"chunk-size", o.ChunkSize, "Passage length in characters.")
	fs.IntVar(&o.ChunkOverlap, p+"chunk-overlap", o.ChunkOverlap, "Characters shared by adjacent passages.")
	fs.IntVar(&o.TopK, p+"top-k", o.TopK, "Number of passages retrieved per question.")
	fs.IntVar(&o.EmbedBatchSize, p+"embed-batch-size", o.EmbedBatchSize, "Passages per embedding request.")
	fs.IntVar(&o.EmbedConcurrency, p+"embed-concurrency", o.EmbedConcurrency, "Concurrent embedding requests per index build.")
	fs.StringVar(&o.IndexBackend, p+"index-backend", o.IndexBackend, "Vector index backend (memory, milvus, pgvector).")
	fs.BoolVar(&o.StrictVideoID, p+"strict-video-id", o.StrictVideoID, "Reject video ids that are not 11 URL-safe characters.")
	fs.BoolVar(&o.IncrementalStream, p+"incremental-stream", o.IncrementalStream, "Forward provider tokens as they arrive when supported.")
	fs.DurationVar(&o.MetadataWait, p+"metadata-wait", o.MetadataWait, "How long an answer waits for video metadata.")
	fs.DurationVar(&o.StreamMetadataWait, p+"stream-metadata-wait", o.StreamMetadataWait, "How long a streamed answer waits for video metadata before the first token.")
	fs.StringSliceVar(&o.Languages, p+"languages", o.Languages, "Caption language preference order.")
}

// Validate validates the pipeline options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk-size must be positive"))
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk-overlap must be in [0, chunk-size)"))
	}
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("top-k must be positive"))
	}
	if o.EmbedBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("embed-batch-size must be positive"))
	}
	if o.EmbedConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("embed-concurrency must be positive"))
	}
	switch o.IndexBackend {
	case BackendMemory, BackendMilvus, BackendPGVector:
	default:
		errs = append(errs, fmt.Errorf("unknown index-backend %q", o.IndexBackend))
	}
	if len(o.Languages) == 0 {
		errs = append(errs, fmt.Errorf("languages must not be empty"))
	}
	return errs
}

// Complete completes the pipeline options with defaults.
func (o *Options) Complete() error {
	if o.MetadataWait < 0 {
		o.MetadataWait = 0
	}
	if o.StreamMetadataWait < 0 {
		o.StreamMetadataWait = 0
	}
	return nil
}
