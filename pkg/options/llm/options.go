// Package llm provides LLM provider configuration options.
package llm

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/videoqa/pkg/options"
)

var _ options.IOptions = (*ProviderOptions)(nil)

// ProviderOptions 定义 LLM 供应商配置。
type ProviderOptions struct {
	// Provider 供应商名称（huggingface, ollama, openai）。
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL API 基础地址，为空时使用供应商默认地址。
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey API 密钥（huggingface、openai 需要）。
	APIKey string `json:"api-key" mapstructure:"api-key"`

	// Model 使用的模型名称。
	Model string `json:"model" mapstructure:"model"`

	// Timeout 请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 最大重试次数。
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	// Temperature 生成温度，仅对 Chat 供应商生效。
	Temperature float64 `json:"temperature" mapstructure:"temperature"`

	// CircuitBreaker 是否启用熔断。
	CircuitBreaker bool `json:"circuit-breaker" mapstructure:"circuit-breaker"`
}

// NewProviderOptions 创建默认 LLM 供应商配置。
func NewProviderOptions() *ProviderOptions {
	return &ProviderOptions{
		Provider:       "huggingface",
		Timeout:        120 * time.Second,
		MaxRetries:     2,
		Temperature:    0.7,
		CircuitBreaker: true,
	}
}

// NewEmbeddingOptions 创建默认 Embedding 供应商配置。
func NewEmbeddingOptions() *ProviderOptions {
	opts := NewProviderOptions()
	opts.Model = "sentence-transformers/all-MiniLM-L6-v2"
	return opts
}

// NewChatOptions 创建默认 Chat 供应商配置。
func NewChatOptions() *ProviderOptions {
	opts := NewProviderOptions()
	opts.Model = "openai/gpt-oss-120b"
	return opts
}

// ToConfigMap 转换为配置 map，用于供应商工厂。空值不写入，由供应商使用默认值。
func (o *ProviderOptions) ToConfigMap() map[string]any {
	cfg := map[string]any{
		"timeout":     o.Timeout,
		"max_retries": o.MaxRetries,
		"temperature": o.Temperature,
	}
	if o.BaseURL != "" {
		cfg["base_url"] = o.BaseURL
	}
	if o.APIKey != "" {
		cfg["api_key"] = o.APIKey
	}
	if o.Model != "" {
		cfg["embed_model"] = o.Model
		cfg["chat_model"] = o.Model
	}
	return cfg
}

// AddFlags adds flags for LLM provider options to the specified FlagSet.
func (o *ProviderOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Provider, p+"provider", o.Provider, "LLM provider (huggingface, ollama, openai).")
	fs.StringVar(&o.BaseURL, p+"base-url", o.BaseURL, "LLM API base URL. Empty uses the provider default.")
	fs.StringVar(&o.APIKey, p+"api-key", o.APIKey, "LLM API key.")
	fs.StringVar(&o.Model, p+"model", o.Model, "LLM model name.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "LLM request timeout.")
	fs.IntVar(&o.MaxRetries, p+"max-retries", o.MaxRetries, "LLM maximum number of retries.")
	fs.Float64Var(&o.Temperature, p+"temperature", o.Temperature, "Sampling temperature for generation.")
	fs.BoolVar(&o.CircuitBreaker, p+"circuit-breaker", o.CircuitBreaker, "Wrap the provider with a circuit breaker.")
}

// Validate validates the LLM provider options.
func (o *ProviderOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Provider == "" {
		errs = append(errs, fmt.Errorf("provider is required"))
	}
	if o.Model == "" {
		errs = append(errs, fmt.Errorf("model is required"))
	}
	// 托管供应商需要 API key
	if (o.Provider == "openai" || o.Provider == "huggingface") && o.APIKey == "" {
		errs = append(errs, fmt.Errorf("api-key is required for %s provider", o.Provider))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive"))
	}
	if o.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max-retries must not be negative"))
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be within [0, 2]"))
	}
	return errs
}

// apiKeyEnv lists the conventional environment variables holding each
// hosted provider's key, in lookup order.
var apiKeyEnv = map[string][]string{
	"huggingface": {"HUGGINGFACEHUB_API_TOKEN", "HF_TOKEN"},
	"openai":      {"OPENAI_API_KEY"},
}

// Complete completes the LLM provider options with defaults. An empty
// api-key falls back to the provider's conventional environment variable.
func (o *ProviderOptions) Complete() error {
	if o.Timeout <= 0 {
		o.Timeout = 120 * time.Second
	}
	if o.APIKey == "" {
		for _, env := range apiKeyEnv[o.Provider] {
			if v := os.Getenv(env); v != "" {
				o.APIKey = v
				break
			}
		}
	}
	return nil
}
