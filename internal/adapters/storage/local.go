package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jobrunner/spatialquery/internal/ports/output"
)

// LocalStorage serves packages from a directory tree. Keys are slash
// separated paths relative to the root.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates a local storage adapter rooted at root.
func NewLocalStorage(root string) *LocalStorage {
	return &LocalStorage{root: root}
}

// List walks the root and returns every package file below it.
func (s *LocalStorage) List(ctx context.Context) ([]output.StorageObject, error) {
	var objects []output.StorageObject

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !isPackageKey(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}

		objects = append(objects, output.StorageObject{
			Key:          filepath.ToSlash(rel),
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, storageError(opList, s.root, err)
	}

	return objects, nil
}

// Download copies key to dest. Downloading a file onto itself is a no-op,
// which is the normal case when the registry caches into the same root.
func (s *LocalStorage) Download(_ context.Context, key, dest string) error {
	src := s.FullPath(key)
	if filepath.Clean(src) == filepath.Clean(dest) {
		return nil
	}

	f, err := os.Open(src) //#nosec G304 -- key comes from List
	if err != nil {
		return storageError(opDownload, key, err)
	}
	defer func() { _ = f.Close() }()

	if err := writeFile(dest, f); err != nil {
		return storageError(opDownload, key, err)
	}
	return nil
}

// GetReader opens key for reading.
func (s *LocalStorage) GetReader(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.FullPath(key)) //#nosec G304 -- key comes from List
	if err != nil {
		return nil, storageError(opRead, key, err)
	}
	return f, nil
}

// Exists reports whether key is present.
func (s *LocalStorage) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(s.FullPath(key))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, storageError(opExists, key, err)
	}
}

// FullPath returns the file system path of key.
func (s *LocalStorage) FullPath(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}
