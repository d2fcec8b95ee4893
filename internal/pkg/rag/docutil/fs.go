// Package docutil 提供文档处理相关的工具函数：文本提取与文件读写。
package docutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir 确保目录存在，如果不存在则创建。
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// FileExists 检查文件是否存在。
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// WriteFileAtomic 写入同目录临时文件、fsync 后 rename 覆盖目标。
// 读者要么看到旧文件，要么看到完整的新文件。
func WriteFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := EnsureDir(dir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
