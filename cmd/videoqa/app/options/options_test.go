package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	videoqaopts "github.com/kart-io/videoqa/pkg/options/videoqa"
)

func validOptions(t *testing.T) *ServerOptions {
	t.Helper()
	o := NewServerOptions()
	o.EmbeddingOptions.APIKey = "hf_test"
	o.ChatOptions.APIKey = "hf_test"
	require.NoError(t, o.Complete())
	return o
}

func TestServerOptions_DefaultsValidate(t *testing.T) {
	o := validOptions(t)
	assert.NoError(t, o.Validate())
}

func TestServerOptions_ValidateMissingKeys(t *testing.T) {
	t.Setenv("HUGGINGFACEHUB_API_TOKEN", "")
	t.Setenv("HF_TOKEN", "")

	o := NewServerOptions()
	require.NoError(t, o.Complete())

	err := o.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding: api-key is required")
	assert.Contains(t, err.Error(), "chat: api-key is required")
}

func TestServerOptions_ValidatesOnlySelectedBackend(t *testing.T) {
	o := validOptions(t)
	o.MilvusOptions.Address = ""
	o.PostgresOptions.Host = ""
	assert.NoError(t, o.Validate())

	o.VideoQAOptions.IndexBackend = videoqaopts.BackendMilvus
	err := o.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "milvus address is required")
	assert.NotContains(t, err.Error(), "postgres")

	o.VideoQAOptions.IndexBackend = videoqaopts.BackendPGVector
	err = o.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres.host is required")
	assert.NotContains(t, err.Error(), "milvus")
}

func TestServerOptions_ValidatesRedisOnlyWhenUsed(t *testing.T) {
	o := validOptions(t)
	o.RedisOptions.Host = ""
	assert.NoError(t, o.Validate())

	o.CacheOptions.Redis = true
	err := o.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.host is required")
}

func TestServerOptions_Flags(t *testing.T) {
	o := NewServerOptions()
	fss := o.Flags()

	for _, name := range []string{"http", "embedding", "chat", "videoqa", "cache", "tracing", "misc"} {
		assert.Contains(t, fss.Order, name)
	}

	require.NoError(t, fss.FlagSet("embedding").Parse([]string{"--embedding.provider=ollama", "--embedding.model=nomic-embed-text"}))
	require.NoError(t, fss.FlagSet("videoqa").Parse([]string{"--videoqa.index-backend=pgvector"}))
	require.NoError(t, fss.FlagSet("misc").Parse([]string{"--shutdown-timeout=5s"}))

	assert.Equal(t, "ollama", o.EmbeddingOptions.Provider)
	assert.Equal(t, "nomic-embed-text", o.EmbeddingOptions.Model)
	assert.Equal(t, videoqaopts.BackendPGVector, o.VideoQAOptions.IndexBackend)
	assert.Equal(t, "5s", o.ShutdownTimeout.String())
}

func TestServerOptions_Config(t *testing.T) {
	o := validOptions(t)
	cfg, err := o.Config()
	require.NoError(t, err)

	assert.Same(t, o.HTTPOptions, cfg.HTTPOptions)
	assert.Same(t, o.VideoQAOptions, cfg.VideoQAOptions)
	assert.Same(t, o.TracingOptions, cfg.TracingOptions)
	assert.Equal(t, o.ShutdownTimeout, cfg.ShutdownTimeout)
}
