// Package llm 提供统一的 LLM 供应商抽象层。
// Embedding 与文本生成可以分别使用不同供应商的模型。
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// EmbeddingProvider 定义 Embedding 供应商接口。
type EmbeddingProvider interface {
	// Embed 为多个文本生成向量嵌入，返回结果与输入一一对应。
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle 为单个文本生成向量嵌入。
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Name 返回供应商名称。
	Name() string
}

// ChatProvider 定义文本生成供应商接口。
type ChatProvider interface {
	// Generate 根据提示生成文本（单轮，非流式）。
	Generate(ctx context.Context, prompt string) (string, error)

	// Name 返回供应商名称。
	Name() string
}

// Provider 同时支持 Embedding 和文本生成的完整供应商。
type Provider interface {
	EmbeddingProvider
	ChatProvider
}

// ProviderFactory 供应商工厂函数类型。
type ProviderFactory func(config map[string]any) (Provider, error)

var registry = &providerRegistry{
	providers: make(map[string]ProviderFactory),
}

type providerRegistry struct {
	mu        sync.RWMutex
	providers map[string]ProviderFactory
}

// RegisterProvider 注册供应商工厂。重复注册会覆盖旧的工厂。
func RegisterProvider(name string, factory ProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.providers[name] = factory
}

// NewProvider 根据名称或策略创建供应商实例。
func NewProvider(name string, config map[string]any) (Provider, error) {
	resolved := Resolve(name)

	registry.mu.RLock()
	factory, ok := registry.providers[resolved]
	registry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	return factory(config)
}

// NewEmbeddingProvider 根据名称或策略创建 Embedding 供应商实例。
func NewEmbeddingProvider(name string, config map[string]any) (EmbeddingProvider, error) {
	p, err := NewProvider(name, config)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	return p, nil
}

// NewChatProvider 根据名称或策略创建文本生成供应商实例。
func NewChatProvider(name string, config map[string]any) (ChatProvider, error) {
	p, err := NewProvider(name, config)
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	return p, nil
}

// ListProviders 列出所有已注册的供应商名称（按字母序）。
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
