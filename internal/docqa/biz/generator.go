package biz

import (
	"context"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/pkg/infra/tracing"
	"github.com/kart-io/docqa/pkg/llm"
	ragopts "github.com/kart-io/docqa/pkg/options/rag"
)

// ContextSeparator 分隔提示词中相邻的上下文块。
const ContextSeparator = "\n\n---\n\n"

// Generator 负责答案生成。
type Generator struct {
	chat     llm.ChatProvider
	template string
}

// NewGenerator 创建生成器实例，template 为空时使用默认模板。
func NewGenerator(chat llm.ChatProvider, template string) *Generator {
	if template == "" {
		template = ragopts.DefaultPromptTemplate
	}
	return &Generator{chat: chat, template: template}
}

// BuildPrompt 将上下文块与问题填入模板。纯函数，不调用模型。
func (g *Generator) BuildPrompt(question string, chunks []string) string {
	// 单次替换，块文本中出现的占位符不会被再次展开
	r := strings.NewReplacer(
		"{{context}}", strings.Join(chunks, ContextSeparator),
		"{{question}}", question,
	)
	return r.Replace(g.template)
}

// Synthesize 构建提示词并调用一次生成模型，返回模型原始输出。
func (g *Generator) Synthesize(ctx context.Context, question string, chunks []string) (answer string, err error) {
	ctx, span := tracing.StartSpan(ctx, "docqa.synthesize",
		tracing.Int(tracing.AttrChunks, len(chunks)),
		tracing.String(tracing.AttrProvider, g.chat.Name()),
	)
	defer func() { tracing.End(span, err) }()

	prompt := g.BuildPrompt(question, chunks)
	answer, err = g.chat.Generate(ctx, prompt)
	if err != nil {
		logger.Warnw("Answer generation failed", "provider", g.chat.Name(), "error", err)
		return "", mapProviderError(err)
	}

	logger.Debugw("Answer generated", "provider", g.chat.Name(), "prompt_length", len(prompt), "answer_length", len(answer))
	return answer, nil
}

// breakerReporter 由带熔断的供应商包装器实现。
type breakerReporter interface {
	BreakerState() string
}

// BreakerState 返回生成供应商的熔断器状态，未启用熔断时返回空串。
func (g *Generator) BreakerState() string {
	if b, ok := g.chat.(breakerReporter); ok {
		return b.BreakerState()
	}
	return ""
}
