// Package llm 提供统一的模型供应商抽象层。
// Embedding 与文本生成可以分别使用不同供应商的模型。
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// EmbeddingProvider 定义 Embedding 供应商接口。
// 同一个供应商实例对所有输入返回相同维度的向量。
type EmbeddingProvider interface {
	// Embed 为多个文本生成向量嵌入，结果与输入一一对应。
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle 为单个文本生成向量嵌入。
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Name 返回供应商名称。
	Name() string
}

// ChatProvider 定义文本生成供应商接口。
type ChatProvider interface {
	// Chat 根据消息列表生成回复。
	Chat(ctx context.Context, messages []Message) (string, error)

	// Generate 根据提示生成文本（单轮）。systemPrompt 可以为空。
	Generate(ctx context.Context, prompt string, systemPrompt string) (string, error)

	// Name 返回供应商名称。
	Name() string
}

// StreamingChatProvider 是支持增量解码的生成供应商。
// 返回的 channel 按顺序输出文本片段，结束时关闭；
// 生成过程中的错误通过 error channel 传递，最多一个。
type StreamingChatProvider interface {
	ChatProvider

	GenerateStream(ctx context.Context, prompt string, systemPrompt string) (<-chan string, <-chan error)
}

// Message 表示对话中的一条消息。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role 定义消息角色。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Provider 同时支持 Embedding 和文本生成的完整供应商。
type Provider interface {
	EmbeddingProvider
	ChatProvider
}

// 供应商工厂接收的通用配置键。
const (
	ConfigBaseURL     = "base_url"
	ConfigAPIKey      = "api_key"
	ConfigEmbedModel  = "embed_model"
	ConfigChatModel   = "chat_model"
	ConfigTimeout     = "timeout"
	ConfigMaxRetries  = "max_retries"
	ConfigTemperature = "temperature"
	ConfigMaxTokens   = "max_tokens"
)

// ProviderFactory 供应商工厂函数类型。
type ProviderFactory func(config map[string]any) (Provider, error)

// registry 供应商注册表。
var registry = &providerRegistry{
	providers: make(map[string]ProviderFactory),
}

type providerRegistry struct {
	mu        sync.RWMutex
	providers map[string]ProviderFactory
}

// RegisterProvider 注册供应商工厂，同名注册会覆盖之前的工厂。
func RegisterProvider(name string, factory ProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.providers[name] = factory
}

// NewProvider 根据名称创建供应商实例。
func NewProvider(name string, config map[string]any) (Provider, error) {
	registry.mu.RLock()
	factory, ok := registry.providers[name]
	registry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	if config == nil {
		config = map[string]any{}
	}
	return factory(config)
}

// NewEmbeddingProvider 根据名称创建 Embedding 供应商实例。
func NewEmbeddingProvider(name string, config map[string]any) (EmbeddingProvider, error) {
	p, err := NewProvider(name, config)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	return p, nil
}

// NewChatProvider 根据名称创建文本生成供应商实例。
func NewChatProvider(name string, config map[string]any) (ChatProvider, error) {
	p, err := NewProvider(name, config)
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	return p, nil
}

// ListProviders 按名称排序列出所有已注册的供应商。
func ListProviders() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.providers))
	for name := range registry.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String 读取字符串配置，缺失或为空时返回 def。
func String(config map[string]any, key, def string) string {
	if v, ok := config[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Duration 读取时长配置，非正数时返回 def。
func Duration(config map[string]any, key string, def time.Duration) time.Duration {
	if v, ok := config[key].(time.Duration); ok && v > 0 {
		return v
	}
	return def
}

// Int 读取整数配置，负数或缺失时返回 def。0 是合法值。
func Int(config map[string]any, key string, def int) int {
	if v, ok := config[key].(int); ok && v >= 0 {
		return v
	}
	return def
}

// Float 读取浮点配置，负数或缺失时返回 def。
func Float(config map[string]any, key string, def float64) float64 {
	switch v := config[key].(type) {
	case float64:
		if v >= 0 {
			return v
		}
	case float32:
		if v >= 0 {
			return float64(v)
		}
	}
	return def
}

// AsStreaming 沿包装链（Unwrap）查找支持流式生成的供应商。
func AsStreaming(p ChatProvider) (StreamingChatProvider, bool) {
	for p != nil {
		if s, ok := p.(StreamingChatProvider); ok {
			return s, true
		}
		u, ok := p.(interface{ Unwrap() ChatProvider })
		if !ok {
			return nil, false
		}
		p = u.Unwrap()
	}
	return nil, false
}
