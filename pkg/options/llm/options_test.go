package llm

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderOptions_Flags(t *testing.T) {
	o := NewChatOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs, "chat")

	require.NoError(t, fs.Parse([]string{"--chat.provider=ollama", "--chat.model=llama3.1", "--chat.temperature=0.2"}))
	assert.Equal(t, "ollama", o.Provider)
	assert.Equal(t, "llama3.1", o.Model)
	assert.InDelta(t, 0.2, o.Temperature, 1e-9)
	assert.Empty(t, o.Validate())
}

func TestProviderOptions_Validate(t *testing.T) {
	o := NewEmbeddingOptions()
	o.Temperature = 3
	o.Timeout = 0

	errs := o.Validate()
	assert.Len(t, errs, 3)
}

func TestProviderOptions_ToConfigMap(t *testing.T) {
	o := NewChatOptions()
	o.APIKey = "hf_x"

	cfg := o.ToConfigMap()
	assert.Equal(t, "hf_x", cfg["api_key"])
	assert.Equal(t, "openai/gpt-oss-120b", cfg["chat_model"])
	assert.Equal(t, 0.7, cfg["temperature"])
	_, ok := cfg["base_url"]
	assert.False(t, ok)
}

func TestProviderOptions_CompleteReadsEnvKey(t *testing.T) {
	t.Setenv("HUGGINGFACEHUB_API_TOKEN", "")
	t.Setenv("HF_TOKEN", "hf_env")

	o := NewEmbeddingOptions()
	require.NoError(t, o.Complete())
	assert.Equal(t, "hf_env", o.APIKey)

	o = NewEmbeddingOptions()
	o.APIKey = "hf_flag"
	require.NoError(t, o.Complete())
	assert.Equal(t, "hf_flag", o.APIKey)

	o = NewEmbeddingOptions()
	o.Provider = "ollama"
	require.NoError(t, o.Complete())
	assert.Empty(t, o.APIKey)
}
