// Package milvus wraps the Milvus SDK for per-video passage collections.
//
// Every indexed video gets its own collection holding the passage order
// (idx), its text and its embedding. Collections are created lazily and
// dropped when the owning index is evicted.
package milvus

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	milvusopts "github.com/kart-io/videoqa/pkg/options/milvus"
)

const (
	fieldID        = "id"
	fieldIdx       = "idx"
	fieldText      = "text"
	fieldEmbedding = "embedding"

	maxTextLen = 65535
)

// Client wraps the Milvus SDK client.
type Client struct {
	client *milvusclient.Client
	opts   *milvusopts.Options
}

// New creates a new Milvus client.
func New(opts *milvusopts.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("milvus options is nil")
	}
	if err := utilerrors.NewAggregate(opts.Validate()); err != nil {
		return nil, fmt.Errorf("invalid milvus options: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  opts.Address,
		Username: opts.Username,
		Password: opts.Password,
		DBName:   opts.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	return &Client{
		client: c,
		opts:   opts,
	}, nil
}

// Close closes the Milvus client connection.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

// Options returns the options the client was built from.
func (c *Client) Options() *milvusopts.Options {
	return c.opts
}

// CollectionName maps a video id onto a valid collection name. Video ids
// may contain '-', which Milvus rejects, so the id is hex encoded.
func CollectionName(prefix, videoID string) string {
	return prefix + "_v" + hex.EncodeToString([]byte(videoID))
}

// EnsurePassageCollection creates, indexes and loads the collection when it
// does not exist yet.
func (c *Client) EnsurePassageCollection(ctx context.Context, name string, dim int) error {
	exists, err := c.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	schema := entity.NewSchema().
		WithName(name).
		WithDescription("video transcript passages").
		WithAutoID(true).
		WithField(entity.NewField().
			WithName(fieldID).
			WithDataType(entity.FieldTypeInt64).
			WithIsPrimaryKey(true).
			WithIsAutoID(true)).
		WithField(entity.NewField().
			WithName(fieldIdx).
			WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().
			WithName(fieldText).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(maxTextLen)).
		WithField(entity.NewField().
			WithName(fieldEmbedding).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(dim)))

	if err := c.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(name, schema)); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	// 余弦相似度，与内存索引的打分方式一致
	idx := index.NewIvfFlatIndex(entity.COSINE, 128)
	createIdxTask, err := c.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(name, fieldEmbedding, idx))
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := createIdxTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for index creation: %w", err)
	}

	loadTask, err := c.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}
	return nil
}

// InsertPassages writes passages in order and flushes so they are
// immediately searchable.
func (c *Client) InsertPassages(ctx context.Context, name string, texts []string, vectors [][]float32) error {
	if len(texts) != len(vectors) {
		return fmt.Errorf("passage count %d does not match vector count %d", len(texts), len(vectors))
	}
	if len(texts) == 0 {
		return nil
	}

	idx := make([]int64, len(texts))
	for i := range idx {
		idx[i] = int64(i)
	}
	truncated := make([]string, len(texts))
	for i, t := range texts {
		if len(t) > maxTextLen {
			t = t[:maxTextLen]
		}
		truncated[i] = t
	}

	columns := []column.Column{
		column.NewColumnInt64(fieldIdx, idx),
		column.NewColumnVarChar(fieldText, truncated),
		column.NewColumnFloatVector(fieldEmbedding, len(vectors[0]), vectors),
	}
	if _, err := c.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(name, columns...)); err != nil {
		return fmt.Errorf("failed to insert passages: %w", err)
	}

	flushTask, err := c.client.Flush(ctx, milvusclient.NewFlushOption(name))
	if err != nil {
		return fmt.Errorf("failed to flush collection: %w", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for flush: %w", err)
	}
	return nil
}

// PassageHit is one search result.
type PassageHit struct {
	Idx   int
	Text  string
	Score float32
}

// SearchPassages returns the topK passages closest to vector, best first.
func (c *Client) SearchPassages(ctx context.Context, name string, vector []float32, topK int) ([]PassageHit, error) {
	results, err := c.client.Search(ctx, milvusclient.NewSearchOption(
		name,
		topK,
		[]entity.Vector{entity.FloatVector(vector)},
	).WithANNSField(fieldEmbedding).
		WithSearchParam("nprobe", "16").
		WithOutputFields(fieldIdx, fieldText))
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(results) == 0 {
		return []PassageHit{}, nil
	}

	rs := results[0]
	hits := make([]PassageHit, rs.ResultCount)
	for i := range hits {
		hits[i].Score = rs.Scores[i]
	}
	for _, field := range rs.Fields {
		switch col := field.(type) {
		case *column.ColumnVarChar:
			if col.Name() == fieldText {
				for i, v := range col.Data()[:rs.ResultCount] {
					hits[i].Text = v
				}
			}
		case *column.ColumnInt64:
			if col.Name() == fieldIdx {
				for i, v := range col.Data()[:rs.ResultCount] {
					hits[i].Idx = int(v)
				}
			}
		}
	}
	return hits, nil
}

// DropCollection drops a collection.
func (c *Client) DropCollection(ctx context.Context, name string) error {
	if err := c.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(name)); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// CountPassages returns the number of entities in a collection.
func (c *Client) CountPassages(ctx context.Context, name string) (int64, error) {
	stats, err := c.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(name))
	if err != nil {
		return 0, fmt.Errorf("failed to get collection stats: %w", err)
	}
	if val, ok := stats["row_count"]; ok {
		return strconv.ParseInt(val, 10, 64)
	}
	return 0, nil
}
