package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// LocalService stores objects as plain files below a root directory.
type LocalService struct {
	root string
}

func NewLocalService(root string) (*LocalService, error) {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalService{root: root}, nil
}

func (s *LocalService) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", key, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create file %s: %w", key, err)
	}
	_, copyErr := io.Copy(f, readerWithContext(ctx, body))
	closeErr := f.Close()
	if copyErr != nil {
		_ = os.Remove(path)
		return fmt.Errorf("write file %s: %w", key, copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close file %s: %w", key, closeErr)
	}
	return nil
}

func (s *LocalService) Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, ObjectInfo{}, ErrObjectNotFound
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ObjectInfo{}, ErrObjectNotFound
		}
		return nil, ObjectInfo{}, fmt.Errorf("open file %s: %w", key, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ObjectInfo{}, fmt.Errorf("stat file %s: %w", key, err)
	}
	if fi.IsDir() {
		f.Close()
		return nil, ObjectInfo{}, ErrObjectNotFound
	}

	modified := fi.ModTime()
	info := ObjectInfo{
		Key:          key,
		Size:         fi.Size(),
		ContentType:  mime.TypeByExtension(filepath.Ext(path)),
		LastModified: &modified,
	}
	return f, info, nil
}

func (s *LocalService) Delete(ctx context.Context, key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove file %s: %w", key, err)
	}
	return nil
}

// resolve maps a key to a path, refusing anything that escapes the root.
func (s *LocalService) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(key, "/"))))
	rel, err := filepath.Rel(s.root, clean)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return clean, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var _ Service = (*LocalService)(nil)
