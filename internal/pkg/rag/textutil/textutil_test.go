package textutil_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/internal/pkg/rag/textutil"
	"github.com/kart-io/docqa/pkg/utils/errors"
)

func TestSquaredL2Distance(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float32
	}{
		{"相同向量", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"单位距离", []float32{0, 0}, []float32{1, 0}, 1},
		{"3-4-5", []float32{0, 0}, []float32{3, 4}, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, textutil.SquaredL2Distance(tt.a, tt.b), 1e-6)
		})
	}

	assert.Greater(t, textutil.SquaredL2Distance([]float32{1}, []float32{1, 2}), float32(1e30))
}

func TestNormalizeQuestion(t *testing.T) {
	assert.Equal(t, "What color is the sky?", textutil.NormalizeQuestion("  What  color\tis the\nsky? "))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "你好", textutil.TruncateString("你好世界", 2))
	assert.Equal(t, "abc", textutil.TruncateString("abc", 10))
}

// makeParagraph 生成恰好 n 个 rune 的段落，由短单词组成。
func makeParagraph(n int) string {
	return strings.Repeat("word ", n/5+1)[:n]
}

func TestSplitter_ThreeParagraphs(t *testing.T) {
	text := makeParagraph(831) + "\n\n" + makeParagraph(831) + "\n\n" + makeParagraph(834)
	require.Equal(t, 2500, utf8.RuneCountInString(text))

	s := textutil.NewSplitter(1000, 200)
	chunks, err := s.Split(text)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 1000, "chunk %d", i)
	}
	assertOverlap(t, chunks, 200)
	assert.Equal(t, text, reassemble(chunks, 200))
}

func TestSplitter_ShortText(t *testing.T) {
	chunks, err := textutil.NewSplitter(1000, 200).Split("The sky is blue.")
	require.NoError(t, err)
	assert.Equal(t, []string{"The sky is blue."}, chunks)
}

func TestSplitter_EmptyInput(t *testing.T) {
	s := textutil.NewSplitter(1000, 200)
	for _, in := range []string{"", "   ", "\n\n\t"} {
		_, err := s.Split(in)
		assert.True(t, errors.Is(err, errors.ErrEmptyInput), "input %q", in)
	}
}

func TestSplitter_InvalidConfig(t *testing.T) {
	_, err := textutil.NewSplitter(100, 100).Split("hello")
	assert.Error(t, err)

	_, err = textutil.NewSplitter(0, 0).Split("hello")
	assert.Error(t, err)
}

func TestSplitter_Deterministic(t *testing.T) {
	text := strings.Repeat("Alpha beta gamma. Delta epsilon.\n", 120)
	s := textutil.NewSplitter(300, 50)

	a, err := s.Split(text)
	require.NoError(t, err)
	b, err := s.Split(text)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSplitter_Properties(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
		seps    []string
	}{
		{"单个长单词按字符切分", strings.Repeat("x", 2345), 500, 100, nil},
		{"多字节字符", strings.Repeat("天空是蓝色的。", 300), 256, 32, nil},
		{"句子", strings.Repeat("The quick brown fox jumps over the lazy dog. ", 80), 400, 80, nil},
		{"无重叠", strings.Repeat("line of text\n", 200), 128, 0, nil},
		{"自定义分隔符不含字符级", strings.Repeat("a", 500) + " " + strings.Repeat("b", 900), 1000, 200, []string{"\n\n", " "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := textutil.NewSplitter(tt.size, tt.overlap)
			if tt.seps != nil {
				s.Separators = tt.seps
			}
			chunks, err := s.Split(tt.text)
			require.NoError(t, err)
			require.NotEmpty(t, chunks)

			for i, c := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(c), tt.size, "chunk %d", i)
			}
			assertOverlap(t, chunks, tt.overlap)
			assert.Equal(t, tt.text, reassemble(chunks, tt.overlap))
		})
	}
}

func assertOverlap(t *testing.T, chunks []string, overlap int) {
	t.Helper()
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		cur := []rune(chunks[i])
		require.GreaterOrEqual(t, len(prev), overlap)
		require.GreaterOrEqual(t, len(cur), overlap)
		assert.Equal(t, string(prev[len(prev)-overlap:]), string(cur[:overlap]), "overlap between %d and %d", i-1, i)
	}
}

func reassemble(chunks []string, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(c)
			continue
		}
		b.WriteString(string([]rune(c)[overlap:]))
	}
	return b.String()
}
