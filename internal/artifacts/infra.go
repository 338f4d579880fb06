package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

type memoryBackend struct {
	blobs sync.Map
}

func NewMemoryBackend() Backend {
	return &memoryBackend{}
}

func (b *memoryBackend) Save(_ context.Context, name string, content []byte) error {
	cp := make([]byte, len(content))
	copy(cp, content)
	b.blobs.Store(name, cp)
	return nil
}

func (b *memoryBackend) Load(_ context.Context, name string) ([]byte, error) {
	v, ok := b.blobs.Load(name)
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", name, os.ErrNotExist)
	}
	return v.([]byte), nil
}

func (b *memoryBackend) Remove(_ context.Context, name string) error {
	b.blobs.Delete(name)
	return nil
}

// fileBackend keeps each blob as a temp file under dir.
type fileBackend struct {
	dir string
}

// NewFileBackend creates dir if needed. An empty dir means a fresh
// directory under os.TempDir().
func NewFileBackend(dir string) (Backend, error) {
	if dir == "" {
		d, err := os.MkdirTemp("", "voice_relay-")
		if err != nil {
			return nil, fmt.Errorf("create artifact dir: %w", err)
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &fileBackend{dir: dir}, nil
}

func (b *fileBackend) path(name string) string {
	return filepath.Join(b.dir, filepath.Base(name))
}

func (b *fileBackend) Save(_ context.Context, name string, content []byte) error {
	return os.WriteFile(b.path(name), content, 0o600)
}

func (b *fileBackend) Load(_ context.Context, name string) ([]byte, error) {
	return os.ReadFile(b.path(name))
}

func (b *fileBackend) Remove(_ context.Context, name string) error {
	if err := os.Remove(b.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
