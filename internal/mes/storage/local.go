package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalStorage 保存到本地目录，由 gin 静态路由对外提供
type LocalStorage struct {
	dir       string
	urlPrefix string
}

func NewLocalStorage(dir, urlPrefix string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create drawing dir: %w", err)
	}
	return &LocalStorage{dir: dir, urlPrefix: strings.TrimRight(urlPrefix, "/")}, nil
}

func (s *LocalStorage) Save(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (string, error) {
	handle := objectName(filename)
	dst := filepath.Join(s.dir, filepath.FromSlash(handle))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("create drawing dir: %w", err)
	}

	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create drawing file: %w", err)
	}
	_, err = io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("write drawing file: %w", err)
	}
	return handle, nil
}

func (s *LocalStorage) Open(ctx context.Context, handle string) (io.ReadCloser, error) {
	if !validHandle(handle) {
		return nil, ErrNotFound
	}
	f, err := os.Open(filepath.Join(s.dir, filepath.FromSlash(handle)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

func (s *LocalStorage) Remove(ctx context.Context, handle string) error {
	if !validHandle(handle) {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(handle)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *LocalStorage) URL(handle string) string {
	return path.Join(s.urlPrefix, handle)
}
