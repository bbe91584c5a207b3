package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
)

// Storage keeps uploads on local disk. Files are exposed under publicURL,
// which the HTTP adapter serves from Open.
type Storage struct {
	basePath  string
	publicURL string
}

func New(basePath, publicURL string) (*Storage, error) {
	if basePath == "" {
		basePath = "./uploads"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

func (s *Storage) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", domain.Fail(domain.ErrInvalidArgument, "storage key", "invalid storage key")
	}
	return filepath.Join(s.basePath, key), nil
}

func (s *Storage) Save(_ context.Context, key, contentType string, data io.Reader) (domain.StoredFile, error) {
	path, err := s.path(key)
	if err != nil {
		return domain.StoredFile{}, err
	}
	f, err := os.Create(path)
	if err != nil {
		return domain.StoredFile{}, fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, data)
	if err != nil {
		_ = os.Remove(path)
		return domain.StoredFile{}, fmt.Errorf("write file: %w", err)
	}
	return domain.StoredFile{
		Key:       key,
		URL:       s.publicURL + "/" + key,
		SizeBytes: n,
		MimeType:  contentType,
	}, nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.Fail(domain.ErrNotFound, "open file", "file not found")
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Delete is idempotent: a missing file is not an error.
func (s *Storage) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}
