package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// BlobStore коллаборатор для хранения бинарных объектов (изображения
// рецептов). Реализация на облачном хранилище подключается здесь же.
type BlobStore interface {
	Put(ctx context.Context, data []byte, contentType string) (ref string, err error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

// DirStore хранит объекты файлами в каталоге, имя объекта — uuid
type DirStore struct {
	dir string
}

func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

var _ BlobStore = (*DirStore)(nil)

func extFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	default:
		return ".bin"
	}
}

func (s *DirStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	ref := uuid.NewString() + extFor(contentType)
	if err := os.WriteFile(filepath.Join(s.dir, ref), data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return ref, nil
}

func (s *DirStore) Get(ctx context.Context, ref string) ([]byte, error) {
	// refs are uuid-based names issued by Put, never paths
	if strings.ContainsAny(ref, "/\\") {
		return nil, fmt.Errorf("invalid blob ref %q", ref)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, ref))
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}
