// Package textutil 提供 RAG 相关的文本处理工具函数。
package textutil

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// SquaredL2Distance 计算两个向量的欧氏距离平方。
// 维度不一致时返回 +Inf 语义上的最大值，调用方应保证维度一致。
func SquaredL2Distance(a, b []float32) float32 {
	if len(a) != len(b) {
		return maxFloat32
	}

	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

const maxFloat32 = 3.40282346638528859811704183484516925440e+38

// HashString 计算字符串的 MD5 哈希值。
func HashString(s string) string {
	hash := md5.Sum([]byte(s))
	return hex.EncodeToString(hash[:])
}

// NormalizeQuestion 折叠空白并去除首尾空白，用于缓存键。
func NormalizeQuestion(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

// TruncateString 截断字符串到指定的最大 Unicode 字符数。
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen])
}

// IsBlank 判断字符串是否为空或只包含空白。
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
