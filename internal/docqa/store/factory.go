package store

import (
	"context"
	"fmt"

	indexopts "github.com/kart-io/docqa/pkg/options/index"
	milvusopts "github.com/kart-io/docqa/pkg/options/milvus"
	sqliteopts "github.com/kart-io/docqa/pkg/options/sqlite"
)

// New 根据 index.backend 创建向量索引。
func New(ctx context.Context, opts *indexopts.Options, sqlite *sqliteopts.Options, milvus *milvusopts.Options) (VectorIndex, error) {
	switch opts.Backend {
	case indexopts.BackendFile, "":
		return NewFileIndex(opts.Path)
	case indexopts.BackendSQLite:
		return NewSQLiteIndex(sqlite)
	case indexopts.BackendMilvus:
		return NewMilvusIndex(ctx, milvus)
	default:
		return nil, fmt.Errorf("unknown index backend %q", opts.Backend)
	}
}
