package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("drawing not found")

// Storage 图纸文件存储，handle 由实现生成并写入零件
type Storage interface {
	Save(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (string, error)
	Open(ctx context.Context, handle string) (io.ReadCloser, error)
	Remove(ctx context.Context, handle string) error
	URL(handle string) string
}

// objectName drawings/2026/10/14/<uuid>.pdf
func objectName(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("drawings/%s/%s%s", time.Now().Format("2006/01/02"), uuid.New().String(), ext)
}

// validHandle 拒绝越出存储根目录的路径
func validHandle(handle string) bool {
	if handle == "" || strings.HasPrefix(handle, "/") || strings.Contains(handle, "\\") {
		return false
	}
	for _, part := range strings.Split(handle, "/") {
		if part == ".." || part == "" {
			return false
		}
	}
	return true
}
