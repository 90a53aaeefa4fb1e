package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	postgresdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	options "github.com/kart-io/videoqa/pkg/options/postgres"
)

// dryRunClient 只生成 SQL，不连接数据库。
func dryRunClient(t *testing.T, table string) *Client {
	t.Helper()
	opts := options.NewOptions()
	opts.Table = table

	db, err := gorm.Open(postgresdriver.New(postgresdriver.Config{DSN: opts.DSN()}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               gormlogger.Discard,
	})
	require.NoError(t, err)
	return &Client{db: db, opts: opts}
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	opts := options.NewOptions()
	opts.Table = ""
	_, err = New(opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres.table is required")
}

func TestNewPassages(t *testing.T) {
	rows, err := NewPassages("abc", []string{"first", "second"}, [][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "abc", rows[1].VideoID)
	assert.Equal(t, 1, rows[1].Idx)
	assert.Equal(t, "second", rows[1].Content)
	assert.Equal(t, []float32{0, 1}, rows[1].Embedding.Slice())

	_, err = NewPassages("abc", []string{"only"}, nil)
	assert.Error(t, err)
}

func TestSearchQuery(t *testing.T) {
	c := dryRunClient(t, "rag.passages")

	var hits []PassageHit
	stmt := c.db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return c.searchQuery(tx, "abc", []float32{1, 2}, 4).Find(&hits)
	})

	assert.Contains(t, stmt, `SELECT idx, content AS text, 1 - (embedding <=> '[1,2]') AS score`)
	assert.Contains(t, stmt, `FROM "rag"."passages"`)
	assert.Contains(t, stmt, `WHERE video_id = 'abc'`)
	assert.Contains(t, stmt, `ORDER BY embedding <=> '[1,2]', idx`)
	assert.Contains(t, stmt, `LIMIT 4`)
}

func TestGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, gormLogLevel(0))
	assert.Equal(t, gormlogger.Error, gormLogLevel(2))
	assert.Equal(t, gormlogger.Info, gormLogLevel(4))
}
