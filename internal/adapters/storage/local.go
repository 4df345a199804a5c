package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jobrunner/geolayers/internal/domain"
	"github.com/jobrunner/geolayers/internal/ports/output"
)

// LocalStorage reads layer files from a directory tree.
type LocalStorage struct {
	basePath string
	filter   Filter
}

// NewLocalStorage creates a new local storage adapter.
func NewLocalStorage(basePath string, filter Filter) *LocalStorage {
	return &LocalStorage{basePath: basePath, filter: filter}
}

// List returns all accepted layer files below the base directory.
func (s *LocalStorage) List(_ context.Context) ([]output.StorageObject, error) {
	var objects []output.StorageObject

	err := filepath.Walk(s.basePath, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !s.filter.Match(info.Name()) {
			return nil
		}

		relPath, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}

		objects = append(objects, localObject(filepath.ToSlash(relPath), info))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return objects, nil
}

// Stat returns the metadata of key.
func (s *LocalStorage) Stat(_ context.Context, key string) (output.StorageObject, error) {
	if !ValidKey(key) {
		return output.StorageObject{}, domain.ErrObjectNotFound
	}
	info, err := os.Stat(s.FullPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return output.StorageObject{}, domain.ErrObjectNotFound
		}
		return output.StorageObject{}, err
	}
	if info.IsDir() {
		return output.StorageObject{}, domain.ErrObjectNotFound
	}
	return localObject(key, info), nil
}

// Download copies a file to dest. Copying a file onto itself is a no-op.
func (s *LocalStorage) Download(_ context.Context, key string, dest string) error {
	if !ValidKey(key) {
		return domain.ErrObjectNotFound
	}
	srcPath := s.FullPath(key)
	if filepath.Clean(srcPath) == filepath.Clean(dest) {
		return nil
	}

	src, err := os.Open(srcPath) //#nosec G304 -- key comes from List
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.ErrObjectNotFound
		}
		return err
	}
	defer func() { _ = src.Close() }()

	return writeFile(dest, src)
}

// FullPath returns the full path for a key.
func (s *LocalStorage) FullPath(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}

// Key returns the object key of a path below the base directory.
func (s *LocalStorage) Key(path string) (string, error) {
	absBase, err := filepath.Abs(s.basePath)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absBase, absPath)
	if err != nil {
		return "", err
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", path, s.basePath)
	}
	return filepath.ToSlash(rel), nil
}

func localObject(key string, info fs.FileInfo) output.StorageObject {
	return output.StorageObject{
		Key:          key,
		Size:         info.Size(),
		LastModified: info.ModTime().Unix(),
	}
}
