// Package postgres wraps a gorm PostgreSQL connection for the pgvector
// index backend.
//
// All videos share one passage table keyed by (video_id, idx). The table
// and the vector extension are created on first connect.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	postgresdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	options "github.com/kart-io/videoqa/pkg/options/postgres"
)

// insertBatchSize 单条 INSERT 携带的段落数。
const insertBatchSize = 100

// Passage is one stored transcript chunk.
type Passage struct {
	VideoID   string          `gorm:"column:video_id;primaryKey"`
	Idx       int             `gorm:"column:idx;primaryKey;autoIncrement:false"`
	Content   string          `gorm:"column:content;not null"`
	Embedding pgvector.Vector `gorm:"column:embedding;not null"`
	CreatedAt time.Time       `gorm:"column:created_at"`
}

// PassageHit is one search result.
type PassageHit struct {
	Idx   int
	Text  string
	Score float64
}

// Client wraps gorm.DB.
type Client struct {
	db   *gorm.DB
	opts *options.Options
}

// New creates a new PostgreSQL client from the provided options.
func New(opts *options.Options) (*Client, error) {
	return NewWithContext(context.Background(), opts)
}

// NewWithContext connects, pings and prepares the passage table.
func NewWithContext(ctx context.Context, opts *options.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("postgres options cannot be nil")
	}
	if err := utilerrors.NewAggregate(opts.Validate()); err != nil {
		return nil, fmt.Errorf("invalid postgres options: %w", err)
	}

	db, err := gorm.Open(postgresdriver.Open(opts.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel(opts.LogLevel)),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(opts.MaxIdleConnections)
	sqlDB.SetMaxOpenConns(opts.MaxOpenConnections)
	sqlDB.SetConnMaxLifetime(opts.MaxConnectionLifeTime)

	c := &Client{db: db, opts: opts}
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to ping postgres at %s:%d: %w", opts.Host, opts.Port, err)
	}
	if err := c.ensureSchema(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func gormLogLevel(level int) gormlogger.LogLevel {
	switch level {
	case 2:
		return gormlogger.Error
	case 3:
		return gormlogger.Warn
	case 4:
		return gormlogger.Info
	default:
		return gormlogger.Silent
	}
}

// ensureSchema 建表，向量维度取自 opts.Dim。
func (c *Client) ensureSchema(ctx context.Context) error {
	db := c.db.WithContext(ctx)
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("failed to enable pgvector extension: %w", err)
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ? (
    video_id   TEXT        NOT NULL,
    idx        INTEGER     NOT NULL,
    content    TEXT        NOT NULL,
    embedding  vector(%d)  NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (video_id, idx)
)`, c.opts.Dim)
	if err := db.Exec(ddl, clause.Table{Name: c.opts.Table}).Error; err != nil {
		return fmt.Errorf("failed to create passage table: %w", err)
	}
	return nil
}

// Name returns the storage type identifier.
func (c *Client) Name() string {
	return "postgres"
}

// Ping checks if the connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return sqlDB.PingContext(pingCtx)
}

// Close closes the connection pool.
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB for closing: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close postgres connection: %w", err)
	}
	return nil
}

// Options returns the options the client was built from.
func (c *Client) Options() *options.Options {
	return c.opts
}

// ReplacePassages atomically swaps the stored passages of videoID.
func (c *Client) ReplacePassages(ctx context.Context, videoID string, texts []string, vectors [][]float32) error {
	rows, err := NewPassages(videoID, texts, vectors)
	if err != nil {
		return err
	}

	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(c.opts.Table).Where("video_id = ?", videoID).Delete(&Passage{}).Error; err != nil {
			return fmt.Errorf("failed to delete passages: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Table(c.opts.Table).CreateInBatches(rows, insertBatchSize).Error; err != nil {
			return fmt.Errorf("failed to insert passages: %w", err)
		}
		return nil
	})
}

// NewPassages pairs texts with their vectors in passage order.
func NewPassages(videoID string, texts []string, vectors [][]float32) ([]Passage, error) {
	if len(texts) != len(vectors) {
		return nil, fmt.Errorf("passage count %d does not match vector count %d", len(texts), len(vectors))
	}
	rows := make([]Passage, len(texts))
	for i := range texts {
		rows[i] = Passage{
			VideoID:   videoID,
			Idx:       i,
			Content:   texts[i],
			Embedding: pgvector.NewVector(vectors[i]),
		}
	}
	return rows, nil
}

// SearchPassages returns the topK passages of videoID closest to vector by
// cosine distance. Ties are ordered by passage position.
func (c *Client) SearchPassages(ctx context.Context, videoID string, vector []float32, topK int) ([]PassageHit, error) {
	hits := make([]PassageHit, 0, topK)
	if err := c.searchQuery(c.db.WithContext(ctx), videoID, vector, topK).Find(&hits).Error; err != nil {
		return nil, fmt.Errorf("failed to search passages: %w", err)
	}
	return hits, nil
}

func (c *Client) searchQuery(tx *gorm.DB, videoID string, vector []float32, topK int) *gorm.DB {
	q := pgvector.NewVector(vector)
	return tx.Table(c.opts.Table).
		Select("idx, content AS text, 1 - (embedding <=> ?) AS score", q).
		Where("video_id = ?", videoID).
		Clauses(nearestFirst(q)).
		Limit(topK)
}

func nearestFirst(q pgvector.Vector) clause.OrderBy {
	return clause.OrderBy{Expression: clause.Expr{
		SQL:                "embedding <=> ?, idx",
		Vars:               []interface{}{q},
		WithoutParentheses: true,
	}}
}
