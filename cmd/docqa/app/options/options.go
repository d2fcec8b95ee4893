// Package options contains flags and options for initializing the docqa server.
package options

import (
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	docqa "github.com/kart-io/docqa/internal/docqa"
	cliflag "github.com/kart-io/docqa/pkg/app/cliflag"
	cacheopts "github.com/kart-io/docqa/pkg/options/cache"
	corsopts "github.com/kart-io/docqa/pkg/options/cors"
	indexopts "github.com/kart-io/docqa/pkg/options/index"
	llmopts "github.com/kart-io/docqa/pkg/options/llm"
	logopts "github.com/kart-io/docqa/pkg/options/logger"
	milvusopts "github.com/kart-io/docqa/pkg/options/milvus"
	poolopts "github.com/kart-io/docqa/pkg/options/pool"
	ragopts "github.com/kart-io/docqa/pkg/options/rag"
	resilienceopts "github.com/kart-io/docqa/pkg/options/resilience"
	httpopts "github.com/kart-io/docqa/pkg/options/server/http"
	sqliteopts "github.com/kart-io/docqa/pkg/options/sqlite"
	tracingopts "github.com/kart-io/docqa/pkg/options/tracing"
)

// ServerOptions contains the configuration options for the server.
type ServerOptions struct {
	HTTPOptions *httpopts.Options `json:"http" mapstructure:"http"`
	LogOptions  *logopts.Options  `json:"log" mapstructure:"log"`
	CORSOptions *corsopts.Options `json:"cors" mapstructure:"cors"`

	// EmbeddingOptions 嵌入供应商，ChatOptions 生成供应商，可分别选择策略。
	EmbeddingOptions *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`
	ChatOptions      *llmopts.ProviderOptions `json:"chat" mapstructure:"chat"`

	RAGOptions    *ragopts.Options    `json:"rag" mapstructure:"rag"`
	IndexOptions  *indexopts.Options  `json:"index" mapstructure:"index"`
	SQLiteOptions *sqliteopts.Options `json:"sqlite" mapstructure:"sqlite"`
	MilvusOptions *milvusopts.Options `json:"milvus" mapstructure:"milvus"`
	CacheOptions  *cacheopts.Options  `json:"cache" mapstructure:"cache"`
	PoolOptions   *poolopts.Options   `json:"pool" mapstructure:"pool"`

	TracingOptions    *tracingopts.Options    `json:"tracing" mapstructure:"tracing"`
	ResilienceOptions *resilienceopts.Options `json:"resilience" mapstructure:"resilience"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		HTTPOptions:       httpopts.NewOptions(),
		LogOptions:        logopts.NewOptions(),
		CORSOptions:       corsopts.NewOptions(),
		EmbeddingOptions:  llmopts.NewEmbeddingOptions(),
		ChatOptions:       llmopts.NewChatOptions(),
		RAGOptions:        ragopts.NewOptions(),
		IndexOptions:      indexopts.NewOptions(),
		SQLiteOptions:     sqliteopts.NewOptions(),
		MilvusOptions:     milvusopts.NewOptions(),
		CacheOptions:      cacheopts.NewOptions(),
		PoolOptions:       poolopts.NewOptions(),
		TracingOptions:    tracingopts.NewOptions(),
		ResilienceOptions: resilienceopts.NewOptions(),
	}
}

// Flags returns flags for a specific server by section name.
func (o *ServerOptions) Flags() (fss cliflag.NamedFlagSets) {
	o.HTTPOptions.AddFlags(fss.FlagSet("http"))
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.CORSOptions.AddFlags(fss.FlagSet("cors"))
	o.EmbeddingOptions.AddFlags(fss.FlagSet("embedding"), "embedding")
	o.ChatOptions.AddFlags(fss.FlagSet("chat"), "chat")
	o.RAGOptions.AddFlags(fss.FlagSet("rag"))
	o.IndexOptions.AddFlags(fss.FlagSet("index"))
	o.SQLiteOptions.AddFlags(fss.FlagSet("sqlite"))
	o.MilvusOptions.AddFlags(fss.FlagSet("milvus"))
	o.CacheOptions.AddFlags(fss.FlagSet("cache"))
	o.PoolOptions.AddFlags(fss.FlagSet("pool"))
	o.TracingOptions.AddFlags(fss.FlagSet("tracing"))
	o.ResilienceOptions.AddFlags(fss.FlagSet("resilience"))
	return fss
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	if err := o.HTTPOptions.Complete(); err != nil {
		return err
	}
	if err := o.LogOptions.Complete(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := o.CORSOptions.Complete(); err != nil {
		return fmt.Errorf("cors: %w", err)
	}
	if err := o.EmbeddingOptions.Complete(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := o.ChatOptions.Complete(); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	if err := o.RAGOptions.Complete(); err != nil {
		return fmt.Errorf("rag: %w", err)
	}
	if err := o.CacheOptions.Complete(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := o.TracingOptions.Complete(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	return nil
}

// Validate checks whether the options in ServerOptions are valid.
func (o *ServerOptions) Validate() error {
	errs := []error{}

	errs = append(errs, o.HTTPOptions.Validate()...)
	errs = append(errs, o.LogOptions.Validate()...)
	errs = append(errs, o.CORSOptions.Validate()...)
	errs = append(errs, prefixed("embedding", o.EmbeddingOptions.Validate())...)
	errs = append(errs, prefixed("chat", o.ChatOptions.Validate())...)
	errs = append(errs, o.RAGOptions.Validate()...)
	errs = append(errs, o.IndexOptions.Validate()...)
	errs = append(errs, o.CacheOptions.Validate()...)
	errs = append(errs, o.PoolOptions.Validate()...)
	errs = append(errs, o.TracingOptions.Validate()...)
	errs = append(errs, o.ResilienceOptions.Validate()...)

	switch o.IndexOptions.Backend {
	case indexopts.BackendSQLite:
		errs = append(errs, o.SQLiteOptions.Validate()...)
	case indexopts.BackendMilvus:
		errs = append(errs, o.MilvusOptions.Validate()...)
	}

	return utilerrors.NewAggregate(errs)
}

// Config builds a docqa.Config based on ServerOptions.
func (o *ServerOptions) Config() (*docqa.Config, error) {
	return &docqa.Config{
		HTTPOptions:       o.HTTPOptions,
		LogOptions:        o.LogOptions,
		CORSOptions:       o.CORSOptions,
		EmbeddingOptions:  o.EmbeddingOptions,
		ChatOptions:       o.ChatOptions,
		RAGOptions:        o.RAGOptions,
		IndexOptions:      o.IndexOptions,
		SQLiteOptions:     o.SQLiteOptions,
		MilvusOptions:     o.MilvusOptions,
		CacheOptions:      o.CacheOptions,
		PoolOptions:       o.PoolOptions,
		TracingOptions:    o.TracingOptions,
		ResilienceOptions: o.ResilienceOptions,
	}, nil
}

func prefixed(group string, errs []error) []error {
	out := make([]error, 0, len(errs))
	for _, err := range errs {
		out = append(out, fmt.Errorf("%s.%w", group, err))
	}
	return out
}
