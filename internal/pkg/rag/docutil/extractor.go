package docutil

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/kart-io/docqa/pkg/utils/errors"
)

// blankPDFMessage 图片型 PDF 提取不到文本时返回给用户的提示。
const blankPDFMessage = "PDF produced no text (possibly image-only; OCR not supported)."

var pdfMagic = []byte("%PDF")

// TextExtractor 从上传的文档中提取纯文本。
type TextExtractor interface {
	Extract(ctx context.Context, filename string, data []byte) (string, error)
}

// Extractor 支持 PDF，以及在非 PDF-only 模式下的 .txt / .md。
type Extractor struct {
	// PDFOnly 为 true 时拒绝 PDF 以外的文件。
	PDFOnly bool
}

var _ TextExtractor = (*Extractor)(nil)

// NewExtractor creates an Extractor.
func NewExtractor(pdfOnly bool) *Extractor {
	return &Extractor{PDFOnly: pdfOnly}
}

// IsPDF 根据扩展名或文件头判断是否为 PDF。
func IsPDF(filename string, data []byte) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf") || bytes.HasPrefix(data, pdfMagic)
}

// Extract 提取文本。
// 不支持的类型返回 ErrUnsupportedDocument，损坏的文件返回 ErrExtraction，
// 提取结果为空返回 ErrEmptyInput。
func (e *Extractor) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if IsPDF(filename, data) {
		text, err := extractPDF(ctx, data)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			return "", errors.ErrEmptyInput.WithMessage(blankPDFMessage)
		}
		return text, nil
	}

	if e.PDFOnly {
		return "", errors.ErrUnsupportedDocument
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md", ".markdown", "":
	default:
		return "", errors.ErrUnsupportedDocument.WithMessagef("Unsupported document type %q", filepath.Ext(filename))
	}

	if !utf8.Valid(data) {
		return "", errors.ErrExtraction.WithMessage("Text document is not valid UTF-8")
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return "", errors.ErrEmptyInput.WithMessage("Document text is empty")
	}
	return text, nil
}

// extractPDF 逐页提取纯文本，页之间以空行分隔。
func extractPDF(ctx context.Context, data []byte) (text string, err error) {
	// 解析器在损坏的文件上可能 panic
	defer func() {
		if r := recover(); r != nil {
			err = errors.ErrExtraction.WithCause(fmt.Errorf("pdf parser panic: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.ErrExtraction.WithCause(err)
	}

	var b strings.Builder
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(fonts)
		if err != nil {
			return "", errors.ErrExtraction.WithCause(fmt.Errorf("page %d: %w", i, err))
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(pageText)
	}

	return b.String(), nil
}
