package textutil

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kart-io/docqa/pkg/utils/errors"
)

// DefaultSeparators 从粗到细：段落、行、句子、单词、字符。
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter 递归贪心分块器。
//
// 长度以 rune 计。每个块不超过 MaxSize，相邻块共享恰好 Overlap 个 rune，
// 去掉每个非首块开头的 Overlap 个 rune 后依次拼接即还原原文。
type Splitter struct {
	MaxSize    int
	Overlap    int
	Separators []string
}

// NewSplitter creates a Splitter with the default separators.
func NewSplitter(maxSize, overlap int) *Splitter {
	return &Splitter{
		MaxSize:    maxSize,
		Overlap:    overlap,
		Separators: DefaultSeparators,
	}
}

// Validate checks the size configuration.
func (s *Splitter) Validate() error {
	if s.MaxSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", s.MaxSize)
	}
	if s.Overlap < 0 || s.Overlap >= s.MaxSize {
		return fmt.Errorf("chunk overlap must be in [0, %d), got %d", s.MaxSize, s.Overlap)
	}
	return nil
}

// Split 将文本切分为有序块。空文本或仅含空白返回 ErrEmptyInput。
func (s *Splitter) Split(text string) ([]string, error) {
	if IsBlank(text) {
		return nil, errors.ErrEmptyInput.WithMessage("Document text is empty")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	seps := s.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	// 末尾始终保留按字符切分，任何片段都不超过步长
	if seps[len(seps)-1] != "" {
		seps = append(append(make([]string, 0, len(seps)+1), seps...), "")
	}

	// 片段上限为步长，保证 overlap + 片段 <= MaxSize
	pieces := segment(text, seps, s.MaxSize-s.Overlap)
	return s.pack(pieces), nil
}

// segment 按分隔符递归切分，分隔符保留在前一段末尾。
func segment(text string, seps []string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	if len(seps) == 0 {
		// 不可再分
		return []string{text}
	}

	sep, rest := seps[0], seps[1:]
	var parts []string
	if sep == "" {
		parts = splitRunes(text)
	} else {
		parts = strings.SplitAfter(text, sep)
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		if utf8.RuneCountInString(p) <= limit {
			out = append(out, p)
			continue
		}
		out = append(out, segment(p, rest, limit)...)
	}
	return out
}

func splitRunes(text string) []string {
	out := make([]string, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}

// pack 贪心合并片段；每输出一块，用其末尾 Overlap 个 rune 作为下一块的开头。
func (s *Splitter) pack(pieces []string) []string {
	var (
		chunks []string
		cur    []rune
		fresh  bool // cur 是否含有 overlap 之外的新内容
	)

	for _, p := range pieces {
		pr := []rune(p)
		if len(cur)+len(pr) > s.MaxSize && fresh {
			chunks = append(chunks, string(cur))
			seed := tail(cur, s.Overlap)
			cur = append(make([]rune, 0, s.MaxSize), seed...)
			fresh = false
		}
		cur = append(cur, pr...)
		fresh = true
	}

	if fresh {
		chunks = append(chunks, string(cur))
	}
	return chunks
}

func tail(r []rune, n int) []rune {
	if n <= 0 {
		return nil
	}
	if n >= len(r) {
		return r
	}
	return r[len(r)-n:]
}
