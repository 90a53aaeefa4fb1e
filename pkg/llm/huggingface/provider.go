// Package huggingface 提供 HuggingFace Inference 供应商实现。
// Embedding 使用 feature-extraction 管线，文本生成使用 Router 的 OpenAI 兼容接口。
package huggingface

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/videoqa/pkg/llm"
	"github.com/kart-io/videoqa/pkg/llm/openai"
	"github.com/kart-io/videoqa/pkg/utils/httpclient"
	"github.com/kart-io/videoqa/pkg/utils/json"
)

// ProviderName 是 HuggingFace 供应商的名称标识符
const ProviderName = "huggingface"

func init() {
	llm.RegisterProvider(ProviderName, NewProvider)
}

// Config HuggingFace 供应商配置。
type Config struct {
	// BaseURL Router 基础地址。
	BaseURL string `json:"base_url" mapstructure:"base_url"`

	// APIKey HuggingFace API Token。
	APIKey string `json:"api_key" mapstructure:"api_key"`

	// EmbedModel 用于生成嵌入的模型 ID。
	EmbedModel string `json:"embed_model" mapstructure:"embed_model"`

	// ChatModel 用于生成回答的模型 ID。
	ChatModel string `json:"chat_model" mapstructure:"chat_model"`

	// Timeout 请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 最大重试次数。
	MaxRetries int `json:"max_retries" mapstructure:"max_retries"`

	// Temperature 采样温度。
	Temperature float64 `json:"temperature" mapstructure:"temperature"`

	// MaxTokens 最大生成 token 数，0 表示使用服务端默认值。
	MaxTokens int `json:"max_tokens" mapstructure:"max_tokens"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "https://router.huggingface.co",
		EmbedModel:  "sentence-transformers/all-MiniLM-L6-v2",
		ChatModel:   "openai/gpt-oss-120b",
		Timeout:     120 * time.Second,
		MaxRetries:  3,
		Temperature: 0.7,
	}
}

// Provider HuggingFace 供应商实现。
type Provider struct {
	config *Config
	client *httpclient.Client
	chat   *openai.Provider
}

// NewProvider 从配置 map 创建 HuggingFace 供应商。
func NewProvider(configMap map[string]any) (llm.Provider, error) {
	d := DefaultConfig()
	cfg := &Config{
		BaseURL:     llm.String(configMap, llm.ConfigBaseURL, d.BaseURL),
		APIKey:      llm.String(configMap, llm.ConfigAPIKey, ""),
		EmbedModel:  llm.String(configMap, llm.ConfigEmbedModel, d.EmbedModel),
		ChatModel:   llm.String(configMap, llm.ConfigChatModel, d.ChatModel),
		Timeout:     llm.Duration(configMap, llm.ConfigTimeout, d.Timeout),
		MaxRetries:  llm.Int(configMap, llm.ConfigMaxRetries, d.MaxRetries),
		Temperature: llm.Float(configMap, llm.ConfigTemperature, d.Temperature),
		MaxTokens:   llm.Int(configMap, llm.ConfigMaxTokens, 0),
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("huggingface: api_key 是必需的")
	}

	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig 使用结构化配置创建 HuggingFace 供应商。
func NewProviderWithConfig(cfg *Config) *Provider {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Provider{
		config: cfg,
		client: httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
		chat: openai.NewProviderWithConfig(&openai.Config{
			BaseURL:     cfg.BaseURL + "/v1",
			APIKey:      cfg.APIKey,
			ChatModel:   cfg.ChatModel,
			Timeout:     cfg.Timeout,
			MaxRetries:  cfg.MaxRetries,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}),
	}
}

// Name 返回供应商名称。
func (p *Provider) Name() string {
	return ProviderName
}

type embeddingRequest struct {
	Inputs []string `json:"inputs"`
}

// Embed 为多个文本生成向量嵌入。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	url := fmt.Sprintf("%s/hf-inference/models/%s/pipeline/feature-extraction", p.config.BaseURL, p.config.EmbedModel)
	headers := map[string]string{"Authorization": "Bearer " + p.config.APIKey}

	var raw json.RawMessage
	if err := p.client.PostJSON(ctx, url, headers, embeddingRequest{Inputs: texts}, &raw); err != nil {
		return nil, err
	}

	embeddings, err := decodeEmbeddings(raw)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("向量数量不匹配: 期望 %d, 实际 %d", len(texts), len(embeddings))
	}
	return embeddings, nil
}

// decodeEmbeddings 解析 [][]float32；部分模型返回 token 级别的 [][][]float32，需要取平均。
func decodeEmbeddings(raw []byte) ([][]float32, error) {
	var embeddings [][]float32
	err := json.Unmarshal(raw, &embeddings)
	if err == nil {
		return embeddings, nil
	}

	var tokenEmbeddings [][][]float32
	if err2 := json.Unmarshal(raw, &tokenEmbeddings); err2 != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}

	embeddings = make([][]float32, len(tokenEmbeddings))
	for i, tokens := range tokenEmbeddings {
		if len(tokens) == 0 {
			continue
		}
		mean := make([]float32, len(tokens[0]))
		for _, token := range tokens {
			for j, v := range token {
				if j < len(mean) {
					mean[j] += v
				}
			}
		}
		for j := range mean {
			mean[j] /= float32(len(tokens))
		}
		embeddings[i] = mean
	}
	return embeddings, nil
}

// EmbedSingle 为单个文本生成向量嵌入。
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// Chat 根据消息列表生成回复。
func (p *Provider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	return p.chat.Chat(ctx, messages)
}

// Generate 根据提示生成文本。
func (p *Provider) Generate(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	return p.chat.Generate(ctx, prompt, systemPrompt)
}
