// Package openai 提供兼容 OpenAI API 的供应商实现（cloud-b 策略）。
// 默认指向 Groq 的 OpenAI 兼容端点，也可配置为 OpenAI 官方或其他兼容服务。
//
//	import _ "github.com/kart-io/docqa/pkg/llm/openai"
//
//	provider, err := llm.NewChatProvider("cloud-b", map[string]any{
//	    "api_key": os.Getenv("GROQ_API_KEY"),
//	})
package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kart-io/docqa/pkg/llm"
)

// ProviderName 是 OpenAI 兼容供应商的名称标识符
const ProviderName = "openai"

// DefaultBaseURL Groq 的 OpenAI 兼容端点
const DefaultBaseURL = "https://api.groq.com/openai/v1"

func init() {
	llm.RegisterProvider(ProviderName, NewProvider)
}

// Config OpenAI 兼容供应商配置。
type Config struct {
	// BaseURL API 基础地址。
	BaseURL string `json:"base_url" mapstructure:"base_url"`

	// APIKey API 密钥。
	APIKey string `json:"api_key" mapstructure:"api_key"`

	// EmbedModel 用于生成嵌入的模型。Groq 不提供 Embedding 接口，
	// 使用 Groq 时应为 Embedding 选择其他供应商。
	EmbedModel string `json:"embed_model" mapstructure:"embed_model"`

	// ChatModel 用于文本生成的模型。
	ChatModel string `json:"chat_model" mapstructure:"chat_model"`

	// Temperature 生成温度，0 表示确定性输出。
	Temperature float64 `json:"temperature" mapstructure:"temperature"`

	// Timeout 请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// Organization 组织 ID（可选）。
	Organization string `json:"organization" mapstructure:"organization"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    DefaultBaseURL,
		EmbedModel: string(goopenai.SmallEmbedding3),
		ChatModel:  "llama-3.1-8b-instant",
		Timeout:    120 * time.Second,
	}
}

// Provider OpenAI 兼容供应商实现。
type Provider struct {
	config *Config
	client *goopenai.Client
}

// NewProvider 从配置 map 创建供应商。
func NewProvider(configMap map[string]any) (llm.Provider, error) {
	cfg := DefaultConfig()

	if v, ok := configMap["base_url"].(string); ok && v != "" {
		cfg.BaseURL = v
	}
	if v, ok := configMap["api_key"].(string); ok && v != "" {
		cfg.APIKey = v
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
	if v, ok := configMap["organization"].(string); ok {
		cfg.Organization = v
	}

	return NewProviderWithConfig(cfg)
}

// NewProviderWithConfig 使用结构化配置创建供应商。
func NewProviderWithConfig(cfg *Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: api_key is required", ProviderName)
	}

	clientConfig := goopenai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.BaseURL
	clientConfig.OrgID = cfg.Organization
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Provider{
		config: cfg,
		client: goopenai.NewClientWithConfig(clientConfig),
	}, nil
}

// Name 返回供应商名称。
func (p *Provider) Name() string {
	return ProviderName
}

// Embed 为多个文本生成向量嵌入。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: texts,
		Model: goopenai.EmbeddingModel(p.config.EmbedModel),
	})
	if err != nil {
		return nil, wrap("embed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, wrap("embed", fmt.Errorf("返回向量数量 %d 与输入数量 %d 不一致", len(resp.Data), len(texts)))
	}

	// 按 Index 回填，保证与输入顺序一致
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, wrap("embed", fmt.Errorf("返回向量索引越界: %d", d.Index))
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// EmbedSingle 为单个文本生成向量嵌入。
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// Generate 根据提示生成文本。
func (p *Provider) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: p.config.ChatModel,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature(p.config.Temperature),
	})
	if err != nil {
		return "", wrap("generate", err)
	}
	if len(resp.Choices) == 0 {
		return "", wrap("generate", errors.New("no choices in response"))
	}

	return resp.Choices[0].Message.Content, nil
}

// temperature 为 0 时字段会被 omitempty 丢弃，用最小非零值表达确定性输出
func temperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

func wrap(op string, err error) error {
	status := 0
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	return llm.WrapError(ProviderName, op, status, err)
}
