// Package llm provides LLM provider configuration options.
package llm

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/llm"
	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*ProviderOptions)(nil)

// apiKeyEnv 未显式配置 api-key 时按顺序读取的环境变量。
var apiKeyEnv = map[string][]string{
	"gemini": {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"openai": {"GROQ_API_KEY", "OPENAI_API_KEY"},
}

// ProviderOptions 定义 LLM 供应商配置。
type ProviderOptions struct {
	// Provider 供应商策略（local, cloud-a, cloud-b）或具体名称（ollama, gemini, openai）。
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL API 基础地址，为空时使用供应商默认值。
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey API 密钥，为空时从环境变量读取。
	APIKey string `json:"-" mapstructure:"api-key"`

	// Model 使用的模型名称，为空时使用供应商默认值。
	Model string `json:"model" mapstructure:"model"`

	// Temperature 生成温度（仅对 chat 生效）。
	Temperature float64 `json:"temperature" mapstructure:"temperature"`

	// Timeout 请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 传输层最大重试次数，默认不重试。
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	// Organization 组织 ID（OpenAI 可选）。
	Organization string `json:"organization" mapstructure:"organization"`
}

// NewProviderOptions 创建默认 LLM 供应商配置。
func NewProviderOptions() *ProviderOptions {
	return &ProviderOptions{
		Provider: string(llm.StrategyLocal),
		Timeout:  120 * time.Second,
	}
}

// NewEmbeddingOptions 创建默认 Embedding 供应商配置。
func NewEmbeddingOptions() *ProviderOptions {
	return NewProviderOptions()
}

// NewChatOptions 创建默认 Chat 供应商配置。
func NewChatOptions() *ProviderOptions {
	return NewProviderOptions()
}

// ProviderName 返回解析策略后的具体供应商名称。
func (o *ProviderOptions) ProviderName() string {
	return llm.Resolve(o.Provider)
}

// ToConfigMap 转换为配置 map，用于供应商工厂。
func (o *ProviderOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":     o.BaseURL,
		"api_key":      o.APIKey,
		"embed_model":  o.Model,
		"chat_model":   o.Model,
		"temperature":  o.Temperature,
		"timeout":      o.Timeout,
		"max_retries":  o.MaxRetries,
		"organization": o.Organization,
	}
}

// AddFlags adds flags for LLM provider options to the specified FlagSet.
// prefixes distinguishes the embedding and chat groups.
func (o *ProviderOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Provider, p+"provider", o.Provider, "Provider strategy (local, cloud-a, cloud-b) or name (ollama, gemini, openai).")
	fs.StringVar(&o.BaseURL, p+"base-url", o.BaseURL, "Provider API base URL, empty for the provider default.")
	fs.StringVar(&o.APIKey, p+"api-key", o.APIKey, "Provider API key. Prefer GEMINI_API_KEY / GROQ_API_KEY environment variables.")
	fs.StringVar(&o.Model, p+"model", o.Model, "Model name, empty for the provider default.")
	fs.Float64Var(&o.Temperature, p+"temperature", o.Temperature, "Sampling temperature.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Provider request timeout.")
	fs.IntVar(&o.MaxRetries, p+"max-retries", o.MaxRetries, "Transport-level retries on 5xx and network errors.")
	fs.StringVar(&o.Organization, p+"organization", o.Organization, "Organization ID (OpenAI only).")
}

// Complete fills the API key from the environment when not configured.
func (o *ProviderOptions) Complete() error {
	if o.APIKey != "" {
		return nil
	}
	for _, env := range apiKeyEnv[o.ProviderName()] {
		if v := os.Getenv(env); v != "" {
			o.APIKey = v
			return nil
		}
	}
	return nil
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
	if envs, ok := apiKeyEnv[o.ProviderName()]; ok && o.APIKey == "" {
		errs = append(errs, fmt.Errorf("api-key is required for provider %q (or set %s)", o.Provider, envs[0]))
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
