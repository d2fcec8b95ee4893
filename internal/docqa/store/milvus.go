package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/pkg/component/milvus"
	milvusopts "github.com/kart-io/docqa/pkg/options/milvus"
	"github.com/kart-io/docqa/pkg/utils/errors"
	"github.com/kart-io/docqa/pkg/utils/json"
)

// BackendMilvus Milvus 后端名称。
const BackendMilvus = "milvus"

// MilvusIndex 每次重建创建新集合 <alias>_<generation>，写入完成后切换别名，
// 再删除上一代集合。查询始终经过别名。
type MilvusIndex struct {
	client *milvus.Client
	alias  string
}

var _ VectorIndex = (*MilvusIndex)(nil)

// NewMilvusIndex connects to Milvus.
func NewMilvusIndex(ctx context.Context, opts *milvusopts.Options) (*MilvusIndex, error) {
	client, err := milvus.New(ctx, opts)
	if err != nil {
		return nil, err
	}
	logger.Infow("Milvus index connected", "address", opts.Address, "alias", opts.Alias)
	return &MilvusIndex{client: client, alias: opts.Alias}, nil
}

// Backend returns the backend name.
func (m *MilvusIndex) Backend() string {
	return BackendMilvus
}

// collectionName 返回某一代的集合名。
func collectionName(alias, generation string) string {
	return alias + "_" + strings.ToLower(generation)
}

// Rebuild 新集合写入成功后才切换别名；失败时删除半成品，旧索引不受影响。
func (m *MilvusIndex) Rebuild(ctx context.Context, manifest Manifest, chunks []Chunk, embeddings [][]float32) (err error) {
	dim, err := validateRebuild(chunks, embeddings)
	if err != nil {
		return err
	}
	manifest.Chunks = len(chunks)
	manifest.Dimension = dim

	desc, err := encodeManifest(manifest)
	if err != nil {
		return err
	}

	prev, hasPrev, err := m.client.ResolveAlias(ctx, m.alias)
	if err != nil {
		return err
	}

	name := collectionName(m.alias, manifest.Generation)
	if err := m.client.CreateIndexCollection(ctx, name, desc, dim); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if dropErr := m.client.DropCollection(context.WithoutCancel(ctx), name); dropErr != nil {
				logger.Warnw("Failed to drop incomplete collection", "collection", name, "error", dropErr)
			}
		}
	}()

	ordinals := make([]int64, len(chunks))
	contents := make([]string, len(chunks))
	for i, c := range chunks {
		ordinals[i] = int64(c.Ordinal)
		contents[i] = c.Text
	}
	if err = m.client.InsertChunks(ctx, name, ordinals, contents, embeddings); err != nil {
		return err
	}

	if err = m.client.PointAlias(ctx, m.alias, name, hasPrev); err != nil {
		return err
	}

	if hasPrev && prev != name {
		if dropErr := m.client.DropCollection(ctx, prev); dropErr != nil {
			logger.Warnw("Failed to drop previous index collection", "collection", prev, "error", dropErr)
		}
	}

	logger.Infow("Milvus index switched", "alias", m.alias, "collection", name, "previous", prev)
	return nil
}

// Query 经由别名检索，结果按 (Distance, Ordinal) 重新排序。
func (m *MilvusIndex) Query(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if err := checkK(k); err != nil {
		return nil, err
	}

	manifest, err := m.Manifest(ctx)
	if err != nil {
		return nil, err
	}
	if k == 0 {
		return []Hit{}, nil
	}
	if len(vector) != manifest.Dimension {
		return nil, errors.ErrInvariantViolation.WithMessagef(
			"query vector has dimension %d, index has %d", len(vector), manifest.Dimension)
	}

	results, err := m.client.Search(ctx, m.alias, vector, k)
	if err != nil {
		return nil, err
	}
	return toHits(results, k), nil
}

func toHits(results []milvus.SearchResult, k int) []Hit {
	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{
			Chunk:    Chunk{Ordinal: int(r.Ordinal), Text: r.Content},
			Distance: r.Score,
		}
	}
	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Exists 判断别名是否存在。
func (m *MilvusIndex) Exists(ctx context.Context) (bool, error) {
	_, ok, err := m.client.ResolveAlias(ctx, m.alias)
	return ok, err
}

// Manifest 读取别名所指集合的描述。
func (m *MilvusIndex) Manifest(ctx context.Context) (*Manifest, error) {
	name, ok, err := m.client.ResolveAlias(ctx, m.alias)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.ErrIndexNotFound
	}

	desc, err := m.client.CollectionDescription(ctx, name)
	if err != nil {
		if milvus.IsNotFound(err) {
			return nil, errors.ErrIndexNotFound
		}
		return nil, err
	}
	return decodeManifest(desc)
}

// Close closes the client.
func (m *MilvusIndex) Close() error {
	return m.client.Close(context.Background())
}

func encodeManifest(m Manifest) (string, error) {
	data, err := json.MarshalStable(m)
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	return string(data), nil
}

func decodeManifest(desc string) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal([]byte(desc), &m); err != nil {
		return nil, errors.ErrInvariantViolation.WithCause(fmt.Errorf("decode manifest: %w", err))
	}
	return &m, nil
}
