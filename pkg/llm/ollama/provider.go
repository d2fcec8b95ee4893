// Package ollama 提供 Ollama LLM 供应商实现（local 策略）。
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kart-io/docqa/pkg/llm"
	"github.com/kart-io/docqa/pkg/utils/httpclient"
)

const ProviderName = "ollama"

func init() {
	llm.RegisterProvider(ProviderName, NewProvider)
}

// Config Ollama 供应商配置。
type Config struct {
	BaseURL     string        `json:"base_url" mapstructure:"base_url"`
	EmbedModel  string        `json:"embed_model" mapstructure:"embed_model"`
	ChatModel   string        `json:"chat_model" mapstructure:"chat_model"`
	Temperature float64       `json:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries  int           `json:"max_retries" mapstructure:"max_retries"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "http://localhost:11434",
		EmbedModel: "all-minilm",
		ChatModel:  "llama3.1",
		Timeout:    120 * time.Second,
	}
}

// Provider Ollama 供应商实现。
type Provider struct {
	config *Config
	client *httpclient.Client
}

// NewProvider 从配置 map 创建 Ollama 供应商。
func NewProvider(configMap map[string]any) (llm.Provider, error) {
	cfg := DefaultConfig()

	if v, ok := configMap["base_url"].(string); ok && v != "" {
		cfg.BaseURL = v
	}
	if v, ok := configMap["embed_model"].(string); ok && v != "" {
		cfg.EmbedModel = v
	}
	if v, ok := configMap["chat_model"].(string); ok && v != "" {
		cfg.ChatModel = v
	}
	if v, ok := configMap["temperature"].(float64); ok {
		cfg.Temperature = v
	}
	if v, ok := configMap["timeout"].(time.Duration); ok && v > 0 {
		cfg.Timeout = v
	}
	if v, ok := configMap["max_retries"].(int); ok && v >= 0 {
		cfg.MaxRetries = v
	}

	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig 使用结构化配置创建 Ollama 供应商。
func NewProviderWithConfig(cfg *Config) *Provider {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Provider{
		config: cfg,
		client: httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
	}
}

// Name 返回供应商名称。
func (p *Provider) Name() string {
	return ProviderName
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed 为多个文本生成向量嵌入。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp embedResponse
	err := p.client.PostJSON(ctx, p.config.BaseURL+"/api/embed", embedRequest{
		Model: p.config.EmbedModel,
		Input: texts,
	}, &resp)
	if err != nil {
		return nil, llm.WrapError(ProviderName, "embed", 0, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, llm.WrapError(ProviderName, "embed", 0,
			fmt.Errorf("返回向量数量 %d 与输入数量 %d 不一致", len(resp.Embeddings), len(texts)))
	}

	return resp.Embeddings, nil
}

// EmbedSingle 为单个文本生成向量嵌入。
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate 根据提示生成文本。
func (p *Provider) Generate(ctx context.Context, prompt string) (string, error) {
	var resp generateResponse
	err := p.client.PostJSON(ctx, p.config.BaseURL+"/api/generate", generateRequest{
		Model:   p.config.ChatModel,
		Prompt:  prompt,
		Stream:  false,
		Options: generateOptions{Temperature: p.config.Temperature},
	}, &resp)
	if err != nil {
		return "", llm.WrapError(ProviderName, "generate", 0, err)
	}

	return resp.Response, nil
}

// Ping 检查 Ollama 服务是否可用。
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	if err := p.client.DoJSON(req, nil); err != nil {
		return fmt.Errorf("服务不可用: %w", err)
	}
	return nil
}
