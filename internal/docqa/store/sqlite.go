package store

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/kart-io/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kart-io/docqa/internal/pkg/rag/docutil"
	sqliteopts "github.com/kart-io/docqa/pkg/options/sqlite"
	"github.com/kart-io/docqa/pkg/utils/errors"
)

// BackendSQLite SQLite 后端名称。
const BackendSQLite = "sqlite"

// IndexManifest 索引描述表，最多一行。
type IndexManifest struct {
	ID         uint   `gorm:"primaryKey"`
	Generation string `gorm:"size:26;not null"`
	Document   string `gorm:"size:255"`
	Chunks     int
	Dimension  int
	BuiltAt    time.Time
}

// IndexChunk 文档块表，向量以小端 float32 字节存储。
type IndexChunk struct {
	ID      uint   `gorm:"primaryKey"`
	Ordinal int    `gorm:"uniqueIndex;not null"`
	Text    string `gorm:"type:text;not null"`
	Vector  []byte `gorm:"type:blob;not null"`
}

// SQLiteIndex 基于 gorm + 纯 Go SQLite 的索引后端。
// 重建在单个事务内完成，查询方要么看到旧索引，要么看到新索引。
type SQLiteIndex struct {
	db *gorm.DB

	mu         sync.RWMutex
	generation string
	entries    []entry
}

var _ VectorIndex = (*SQLiteIndex)(nil)

// NewSQLiteIndex opens (or creates) the database and migrates the schema.
func NewSQLiteIndex(opts *sqliteopts.Options) (*SQLiteIndex, error) {
	if opts == nil {
		opts = sqliteopts.NewOptions()
	}
	if opts.Path != ":memory:" {
		if err := docutil.EnsureDir(filepath.Dir(opts.Path)); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	dsn := opts.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel(opts.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite index %s: %w", opts.Path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConnections > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConnections)
	}

	if err := db.AutoMigrate(&IndexManifest{}, &IndexChunk{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite index: %w", err)
	}

	logger.Infow("SQLite index opened", "path", opts.Path)
	return &SQLiteIndex{db: db}, nil
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "error":
		return gormlogger.Error
	case "warn":
		return gormlogger.Warn
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Silent
	}
}

// Backend returns the backend name.
func (s *SQLiteIndex) Backend() string {
	return BackendSQLite
}

// Rebuild 删除全部旧数据并批量写入新数据，单事务。
func (s *SQLiteIndex) Rebuild(ctx context.Context, manifest Manifest, chunks []Chunk, embeddings [][]float32) error {
	dim, err := validateRebuild(chunks, embeddings)
	if err != nil {
		return err
	}
	manifest.Chunks = len(chunks)
	manifest.Dimension = dim

	rows := make([]IndexChunk, len(chunks))
	for i, c := range chunks {
		rows[i] = IndexChunk{Ordinal: c.Ordinal, Text: c.Text, Vector: encodeVector(embeddings[i])}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&IndexChunk{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&IndexManifest{}).Error; err != nil {
			return err
		}
		if err := tx.CreateInBatches(rows, 200).Error; err != nil {
			return err
		}
		return tx.Create(&IndexManifest{
			Generation: manifest.Generation,
			Document:   manifest.Document,
			Chunks:     manifest.Chunks,
			Dimension:  manifest.Dimension,
			BuiltAt:    manifest.BuiltAt,
		}).Error
	})
	if err != nil {
		return fmt.Errorf("rebuild sqlite index: %w", err)
	}

	s.mu.Lock()
	s.generation, s.entries = manifest.Generation, toEntries(chunks, embeddings)
	s.mu.Unlock()
	return nil
}

// Query 精确检索；块数据按代缓存，代变化时重新加载。
func (s *SQLiteIndex) Query(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if err := checkK(k); err != nil {
		return nil, err
	}
	m, entries, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return searchExact(entries, m.Dimension, vector, k)
}

// Exists 判断是否存在索引描述行。
func (s *SQLiteIndex) Exists(ctx context.Context) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&IndexManifest{}).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// Manifest returns the current manifest.
func (s *SQLiteIndex) Manifest(ctx context.Context) (*Manifest, error) {
	m, err := s.readManifest(ctx)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Close closes the database.
func (s *SQLiteIndex) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLiteIndex) readManifest(ctx context.Context) (Manifest, error) {
	var row IndexManifest
	err := s.db.WithContext(ctx).Order("id desc").First(&row).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return Manifest{}, errors.ErrIndexNotFound
		}
		return Manifest{}, fmt.Errorf("read sqlite manifest: %w", err)
	}
	return Manifest{
		Generation: row.Generation,
		Document:   row.Document,
		Chunks:     row.Chunks,
		Dimension:  row.Dimension,
		BuiltAt:    row.BuiltAt,
	}, nil
}

func (s *SQLiteIndex) load(ctx context.Context) (Manifest, []entry, error) {
	m, err := s.readManifest(ctx)
	if err != nil {
		return Manifest{}, nil, err
	}

	s.mu.RLock()
	if s.generation == m.Generation && s.entries != nil {
		entries := s.entries
		s.mu.RUnlock()
		return m, entries, nil
	}
	s.mu.RUnlock()

	// 在同一个读事务中读取描述与块，避免与并发重建交错
	var (
		rows []IndexChunk
		cur  IndexManifest
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Order("id desc").First(&cur).Error; err != nil {
			return err
		}
		return tx.Order("ordinal asc").Find(&rows).Error
	})
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return Manifest{}, nil, errors.ErrIndexNotFound
		}
		return Manifest{}, nil, fmt.Errorf("load sqlite index: %w", err)
	}
	if len(rows) != cur.Chunks {
		return Manifest{}, nil, errors.ErrInvariantViolation.WithMessagef(
			"sqlite index lists %d chunks but holds %d", cur.Chunks, len(rows))
	}

	entries := make([]entry, len(rows))
	for i, r := range rows {
		entries[i] = entry{Ordinal: r.Ordinal, Text: r.Text, Vector: decodeVector(r.Vector)}
	}
	m = Manifest{
		Generation: cur.Generation,
		Document:   cur.Document,
		Chunks:     cur.Chunks,
		Dimension:  cur.Dimension,
		BuiltAt:    cur.BuiltAt,
	}

	s.mu.Lock()
	s.generation, s.entries = m.Generation, entries
	s.mu.Unlock()
	return m, entries, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
