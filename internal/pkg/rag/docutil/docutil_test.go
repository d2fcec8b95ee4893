package docutil_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/internal/pkg/rag/docutil"
	"github.com/kart-io/docqa/pkg/utils/errors"
)

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")

	require.NoError(t, docutil.EnsureDir(dir))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// 再次调用应该不会报错
	assert.NoError(t, docutil.EnsureDir(dir))
	assert.False(t, docutil.FileExists(dir))
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "index.json")

	require.NoError(t, docutil.WriteFileAtomic(path, []byte("v1"), 0o644))
	require.NoError(t, docutil.WriteFileAtomic(path, []byte("v2"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
	assert.True(t, docutil.FileExists(path))

	// 不留下临时文件
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestIsPDF(t *testing.T) {
	assert.True(t, docutil.IsPDF("report.PDF", nil))
	assert.True(t, docutil.IsPDF("upload", []byte("%PDF-1.7\n")))
	assert.False(t, docutil.IsPDF("notes.txt", []byte("hello")))
}

func TestExtractor_PDFOnlyRejectsText(t *testing.T) {
	_, err := docutil.NewExtractor(true).Extract(context.Background(), "notes.txt", []byte("The sky is blue."))
	assert.True(t, errors.Is(err, errors.ErrUnsupportedDocument))
}

func TestExtractor_Text(t *testing.T) {
	e := docutil.NewExtractor(false)
	ctx := context.Background()

	text, err := e.Extract(ctx, "notes.md", []byte("The sky is blue."))
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue.", text)

	_, err = e.Extract(ctx, "blank.txt", []byte(" \n\t "))
	assert.True(t, errors.Is(err, errors.ErrEmptyInput))

	_, err = e.Extract(ctx, "bad.txt", []byte{0xff, 0xfe, 0xfd})
	assert.True(t, errors.Is(err, errors.ErrExtraction))

	_, err = e.Extract(ctx, "sheet.xlsx", []byte("PK"))
	assert.True(t, errors.Is(err, errors.ErrUnsupportedDocument))
}

func TestExtractor_MalformedPDF(t *testing.T) {
	_, err := docutil.NewExtractor(true).Extract(context.Background(), "broken.pdf", []byte("%PDF-1.4\nnot really a pdf"))
	assert.True(t, errors.Is(err, errors.ErrExtraction))
}

func TestExtractor_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := docutil.NewExtractor(false).Extract(ctx, "notes.txt", []byte("hello"))
	assert.ErrorIs(t, err, context.Canceled)
}
