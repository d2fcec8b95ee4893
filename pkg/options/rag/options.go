// Package rag provides chunking, retrieval and prompt configuration options.
package rag

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// DefaultPromptTemplate is the grounding prompt sent to the generation provider.
const DefaultPromptTemplate = `Answer the question based only on the following context. If the context does not contain enough information, say so.

Context:
{{context}}

Question: {{question}}`

// Options contains RAG-specific configuration.
type Options struct {
	// ChunkSize is the maximum chunk length in runes.
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// ChunkOverlap is the number of runes shared by consecutive chunks.
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	// TopK is the number of chunks retrieved per question.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// EmbedBatchSize is the number of chunks sent per embedding request.
	EmbedBatchSize int `json:"embed-batch-size" mapstructure:"embed-batch-size"`

	// PromptTemplate must contain {{context}} and {{question}}.
	PromptTemplate string `json:"prompt-template" mapstructure:"prompt-template"`

	// PDFOnly rejects uploads that are not PDF documents.
	PDFOnly bool `json:"pdf-only" mapstructure:"pdf-only"`

	// MaxUploadSize is the maximum accepted upload size in bytes.
	MaxUploadSize int64 `json:"max-upload-size" mapstructure:"max-upload-size"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		ChunkSize:      1000,
		ChunkOverlap:   200,
		TopK:           4,
		EmbedBatchSize: 32,
		PromptTemplate: DefaultPromptTemplate,
		PDFOnly:        true,
		MaxUploadSize:  32 << 20,
	}
}

// AddFlags adds flags for RAG options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.IntVar(&o.ChunkSize, p+"rag.chunk-size", o.ChunkSize, "Maximum chunk length in characters.")
	fs.IntVar(&o.ChunkOverlap, p+"rag.chunk-overlap", o.ChunkOverlap, "Characters shared by consecutive chunks.")
	fs.IntVar(&o.TopK, p+"rag.top-k", o.TopK, "Number of chunks retrieved per question.")
	fs.IntVar(&o.EmbedBatchSize, p+"rag.embed-batch-size", o.EmbedBatchSize, "Chunks per embedding request.")
	fs.StringVar(&o.PromptTemplate, p+"rag.prompt-template", o.PromptTemplate, "Prompt template with {{context}} and {{question}} placeholders.")
	fs.BoolVar(&o.PDFOnly, p+"rag.pdf-only", o.PDFOnly, "Accept PDF uploads only.")
	fs.Int64Var(&o.MaxUploadSize, p+"rag.max-upload-size", o.MaxUploadSize, "Maximum upload size in bytes.")
}

// Validate validates the RAG options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.chunk-size must be positive"))
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		errs = append(errs, fmt.Errorf("rag.chunk-overlap must be in [0, chunk-size)"))
	}
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("rag.top-k must be positive"))
	}
	if o.EmbedBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.embed-batch-size must be positive"))
	}
	if !strings.Contains(o.PromptTemplate, "{{context}}") || !strings.Contains(o.PromptTemplate, "{{question}}") {
		errs = append(errs, fmt.Errorf("rag.prompt-template must contain {{context}} and {{question}}"))
	}
	if o.MaxUploadSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.max-upload-size must be positive"))
	}
	return errs
}

// Complete completes the RAG options with defaults.
func (o *Options) Complete() error {
	if o.PromptTemplate == "" {
		o.PromptTemplate = DefaultPromptTemplate
	}
	return nil
}
