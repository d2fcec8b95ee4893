package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	indexopts "github.com/kart-io/docqa/pkg/options/index"
)

func TestNewServerOptions_Valid(t *testing.T) {
	o := NewServerOptions()
	require.NoError(t, o.Complete())
	assert.NoError(t, o.Validate())

	cfg, err := o.Config()
	require.NoError(t, err)
	assert.Same(t, o.RAGOptions, cfg.RAGOptions)
	assert.Same(t, o.IndexOptions, cfg.IndexOptions)
}

func TestFlags_Sections(t *testing.T) {
	fss := NewServerOptions().Flags()

	for _, name := range []string{"http", "log", "cors", "embedding", "chat", "rag", "index", "sqlite", "milvus", "cache", "pool", "tracing", "resilience"} {
		assert.Contains(t, fss.Order, name)
	}
	assert.NotNil(t, fss.FlagSets["embedding"].Lookup("embedding.provider"))
	assert.NotNil(t, fss.FlagSets["chat"].Lookup("chat.temperature"))
	assert.NotNil(t, fss.FlagSets["rag"].Lookup("rag.chunk-size"))
	assert.NotNil(t, fss.FlagSets["http"].Lookup("http.request-timeout"))
	assert.NotNil(t, fss.FlagSets["cors"].Lookup("cors.allow-origins"))
}

func TestValidate_Aggregates(t *testing.T) {
	o := NewServerOptions()
	o.RAGOptions.ChunkSize = 0
	o.PoolOptions.Capacity = 0
	o.ChatOptions.Provider = ""

	err := o.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rag.chunk-size")
	assert.Contains(t, err.Error(), "pool.capacity")
	assert.Contains(t, err.Error(), "chat.provider")
}

func TestValidate_BackendSpecific(t *testing.T) {
	o := NewServerOptions()
	o.IndexOptions.Backend = indexopts.BackendMilvus
	o.MilvusOptions.Address = ""

	assert.Error(t, o.Validate())

	o.IndexOptions.Backend = indexopts.BackendFile
	assert.NoError(t, o.Validate())
}
