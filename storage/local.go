package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type LocalStore struct {
	dir string
}

// NewLocalStore creates the upload directory when missing.
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("upload directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) Save(_ context.Context, filename string, r io.Reader) (string, string, error) {
	key := uuid.New().String() + "_" + sanitizeFilename(filename)
	path := filepath.Join(s.dir, key)

	f, err := os.Create(path)
	if err != nil {
		return "", "", fmt.Errorf("create file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", "", fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", "", fmt.Errorf("close file: %w", err)
	}

	return key, "file://" + path, nil
}

func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.dir, filepath.Base(key)))
	if err != nil {
		return nil, fmt.Errorf("open stored file: %w", err)
	}
	return f, nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(filepath.Join(s.dir, filepath.Base(key))); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete stored file: %w", err)
	}
	return nil
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, name)
	if name == "" || name == "." {
		name = "upload"
	}
	return name
}

var _ Store = (*LocalStore)(nil)
