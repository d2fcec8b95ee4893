// Package gemini 提供 Google Gemini LLM 供应商实现（cloud-a 策略）。
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kart-io/docqa/pkg/llm"
)

const ProviderName = "gemini"

// batchLimit BatchEmbedContents 单次请求允许的最大文本数
const batchLimit = 100

func init() {
	llm.RegisterProvider(ProviderName, NewProvider)
}

// Config Gemini 供应商配置。
type Config struct {
	// APIKey Google AI API 密钥。
	APIKey string `json:"api_key" mapstructure:"api_key"`

	// EmbedModel 用于生成嵌入的模型。
	EmbedModel string `json:"embed_model" mapstructure:"embed_model"`

	// ChatModel 用于文本生成的模型。
	ChatModel string `json:"chat_model" mapstructure:"chat_model"`

	// Temperature 生成温度。
	Temperature float64 `json:"temperature" mapstructure:"temperature"`

	// Timeout 单次调用超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		EmbedModel: "gemini-embedding-001",
		ChatModel:  "gemini-1.5-flash",
		Timeout:    120 * time.Second,
	}
}

// Provider Gemini 供应商实现。
type Provider struct {
	config *Config
	client *genai.Client
}

// NewProvider 从配置 map 创建 Gemini 供应商。
func NewProvider(configMap map[string]any) (llm.Provider, error) {
	cfg := DefaultConfig()

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

	return NewProviderWithConfig(context.Background(), cfg)
}

// NewProviderWithConfig 使用结构化配置创建 Gemini 供应商。
func NewProviderWithConfig(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: api_key is required", ProviderName)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("创建 Gemini 客户端失败: %w", err)
	}

	return &Provider{config: cfg, client: client}, nil
}

// Name 返回供应商名称。
func (p *Provider) Name() string {
	return ProviderName
}

// Close 释放底层连接。
func (p *Provider) Close() error {
	return p.client.Close()
}

// Embed 为多个文本生成向量嵌入，超过单批上限时分多次请求。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	em := p.client.EmbeddingModel(p.config.EmbedModel)
	out := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += batchLimit {
		end := min(start+batchLimit, len(texts))

		batch := em.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}

		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, wrap("embed", err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, wrap("embed", fmt.Errorf("返回向量数量 %d 与输入数量 %d 不一致", len(resp.Embeddings), end-start))
		}
		for _, e := range resp.Embeddings {
			if e == nil {
				return nil, wrap("embed", errors.New("no embedding returned"))
			}
			out = append(out, e.Values)
		}
	}

	return out, nil
}

// EmbedSingle 为单个文本生成向量嵌入。
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	resp, err := p.client.EmbeddingModel(p.config.EmbedModel).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, wrap("embed", err)
	}
	if resp.Embedding == nil {
		return nil, wrap("embed", errors.New("no embedding returned"))
	}
	return resp.Embedding.Values, nil
}

// Generate 根据提示生成文本。
func (p *Provider) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	model := p.client.GenerativeModel(p.config.ChatModel)
	model.SetTemperature(float32(p.config.Temperature))

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", wrap("generate", err)
	}

	return responseText(resp), nil
}

func (p *Provider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.config.Timeout)
}

// responseText 拼接首个候选结果中的全部文本片段
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}

// httpCoder 由 googleapis 的 apierror.APIError 实现
type httpCoder interface {
	HTTPCode() int
}

func wrap(op string, err error) error {
	code := 0
	var hc httpCoder
	if errors.As(err, &hc) && hc.HTTPCode() > 0 {
		code = hc.HTTPCode()
	}
	if s, ok := status.FromError(err); ok && s.Code() == codes.ResourceExhausted {
		code = 429
	}
	return llm.WrapError(ProviderName, op, code, err)
}
