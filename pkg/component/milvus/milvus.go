// Package milvus wraps the Milvus v2 client with the operations the index
// backend needs: per-generation collections and an alias that points at the
// live one.
package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	milvusopts "github.com/kart-io/docqa/pkg/options/milvus"
)

// Field names of an index collection.
const (
	FieldOrdinal   = "ordinal"
	FieldContent   = "content"
	FieldEmbedding = "embedding"
)

// maxContentLen VARCHAR 最大长度（字节）。
const maxContentLen = 65535

// Client Milvus 客户端封装。
type Client struct {
	client *milvusclient.Client
	opts   *milvusopts.Options
}

// New connects to Milvus.
func New(ctx context.Context, opts *milvusopts.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("milvus options is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  opts.Address,
		Username: opts.Username,
		Password: opts.Password,
		DBName:   opts.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	return &Client{
		client: c,
		opts:   opts,
	}, nil
}

// Close closes the connection.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

// CreateIndexCollection 创建一个块集合：ordinal 主键、content、FLAT/L2 向量索引，并加载。
// description 用于保存索引描述。
func (c *Client) CreateIndexCollection(ctx context.Context, name, description string, dim int) error {
	schema := entity.NewSchema().
		WithName(name).
		WithDescription(description).
		WithAutoID(false).
		WithField(entity.NewField().
			WithName(FieldOrdinal).
			WithDataType(entity.FieldTypeInt64).
			WithIsPrimaryKey(true)).
		WithField(entity.NewField().
			WithName(FieldContent).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(maxContentLen)).
		WithField(entity.NewField().
			WithName(FieldEmbedding).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(dim)))

	if err := c.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(name, schema)); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}

	// 精确检索，与其他后端结果一致
	idxTask, err := c.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(name, FieldEmbedding, index.NewFlatIndex(entity.L2)))
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := idxTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for index creation: %w", err)
	}
	return nil
}

// InsertChunks 插入块并 flush、load。
func (c *Client) InsertChunks(ctx context.Context, name string, ordinals []int64, contents []string, embeddings [][]float32) error {
	if len(embeddings) == 0 {
		return fmt.Errorf("no embeddings to insert")
	}

	_, err := c.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(name,
		column.NewColumnInt64(FieldOrdinal, ordinals),
		column.NewColumnVarChar(FieldContent, contents),
		column.NewColumnFloatVector(FieldEmbedding, len(embeddings[0]), embeddings),
	))
	if err != nil {
		return fmt.Errorf("failed to insert data: %w", err)
	}

	flushTask, err := c.client.Flush(ctx, milvusclient.NewFlushOption(name))
	if err != nil {
		return fmt.Errorf("failed to flush collection: %w", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for flush: %w", err)
	}

	loadTask, err := c.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}
	return nil
}

// SearchResult 检索结果。
type SearchResult struct {
	Ordinal int64
	Content string
	Score   float32
}

// Search 在集合（或别名）上检索 topK。
func (c *Client) Search(ctx context.Context, name string, vector []float32, topK int) ([]SearchResult, error) {
	results, err := c.client.Search(ctx, milvusclient.NewSearchOption(
		name,
		topK,
		[]entity.Vector{entity.FloatVector(vector)},
	).WithANNSField(FieldEmbedding).
		WithOutputFields(FieldOrdinal, FieldContent))
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(results) == 0 {
		return []SearchResult{}, nil
	}

	rs := results[0]
	out := make([]SearchResult, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		r := SearchResult{Score: rs.Scores[i]}
		if idCol, ok := rs.IDs.(*column.ColumnInt64); ok {
			r.Ordinal = idCol.Data()[i]
		}
		for _, field := range rs.Fields {
			switch col := field.(type) {
			case *column.ColumnVarChar:
				if col.Name() == FieldContent {
					r.Content = col.Data()[i]
				}
			case *column.ColumnInt64:
				if col.Name() == FieldOrdinal {
					r.Ordinal = col.Data()[i]
				}
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// ResolveAlias 返回别名当前指向的集合；别名不存在时 ok 为 false。
func (c *Client) ResolveAlias(ctx context.Context, alias string) (collection string, ok bool, err error) {
	a, err := c.client.DescribeAlias(ctx, milvusclient.NewDescribeAliasOption(alias))
	if err != nil {
		if IsNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to describe alias %s: %w", alias, err)
	}
	if a == nil || a.CollectionName == "" {
		return "", false, nil
	}
	return a.CollectionName, true, nil
}

// PointAlias 让别名指向 collection，不存在时创建。
func (c *Client) PointAlias(ctx context.Context, alias, collection string, exists bool) error {
	if exists {
		if err := c.client.AlterAlias(ctx, milvusclient.NewAlterAliasOption(alias, collection)); err != nil {
			return fmt.Errorf("failed to alter alias %s: %w", alias, err)
		}
		return nil
	}
	if err := c.client.CreateAlias(ctx, milvusclient.NewCreateAliasOption(collection, alias)); err != nil {
		return fmt.Errorf("failed to create alias %s: %w", alias, err)
	}
	return nil
}

// CollectionDescription 返回集合 schema 的描述。
func (c *Client) CollectionDescription(ctx context.Context, name string) (string, error) {
	coll, err := c.client.DescribeCollection(ctx, milvusclient.NewDescribeCollectionOption(name))
	if err != nil {
		return "", fmt.Errorf("failed to describe collection %s: %w", name, err)
	}
	if coll.Schema == nil {
		return "", nil
	}
	return coll.Schema.Description, nil
}

// DropCollection drops a collection.
func (c *Client) DropCollection(ctx context.Context, name string) error {
	if err := c.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(name)); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// IsNotFound 判断 Milvus 返回的错误是否表示对象不存在。
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") ||
		strings.Contains(msg, "not exist") ||
		strings.Contains(msg, "doesn't exist")
}
