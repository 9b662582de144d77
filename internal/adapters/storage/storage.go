// Package storage provides the object storage backends GeoPackages are
// fetched from: local disk, AWS S3, Azure Blob Storage and plain HTTP.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jobrunner/spatialquery/internal/config"
	"github.com/jobrunner/spatialquery/internal/domain"
	"github.com/jobrunner/spatialquery/internal/ports/output"
)

// PackageExt is the file extension of objects listed by every backend.
const PackageExt = ".gpkg"

// Storage operation names used in errors and metrics.
const (
	opList     = "list"
	opDownload = "download"
	opRead     = "read"
	opExists   = "exists"
)

// New creates the backend selected by cfg.Type.
func New(ctx context.Context, cfg config.StorageConfig) (output.ObjectStorage, error) {
	switch cfg.Type {
	case "local":
		return NewLocalStorage(cfg.LocalPath), nil
	case "s3":
		s, err := NewS3Storage(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "azure":
		s, err := NewAzureStorage(cfg.Azure)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "http":
		return NewHTTPStorage(cfg.HTTP), nil
	default:
		return nil, fmt.Errorf("%w: unknown storage type %q", domain.ErrInvalidInput, cfg.Type)
	}
}

func isPackageKey(key string) bool {
	return strings.HasSuffix(strings.ToLower(key), PackageExt)
}

// relativeKey strips the configured prefix from an object key.
func relativeKey(prefix, key string) string {
	return strings.TrimPrefix(strings.TrimPrefix(key, prefix), "/")
}

// joinKey prepends the configured prefix to a relative key.
func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return path.Join(prefix, key)
}

func storageError(op, key string, err error) error {
	return &domain.StorageError{Operation: op, Key: key, Err: err}
}

type readerSource interface {
	GetReader(ctx context.Context, key string) (io.ReadCloser, error)
}

// download streams key from src into dest.
func download(ctx context.Context, src readerSource, key, dest string) error {
	body, err := src.GetReader(ctx, key)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	if err := writeFile(dest, body); err != nil {
		return storageError(opDownload, key, err)
	}
	return nil
}

// writeFile streams r into dest through a temporary file in the same
// directory, so a half written package is never visible under its final name.
func writeFile(dest string, r io.Reader) (err error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, r); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

// Instrumented records the outcome and duration of every storage call.
type Instrumented struct {
	next    output.ObjectStorage
	metrics output.MetricsCollector
}

// Instrument wraps next with metrics.
func Instrument(next output.ObjectStorage, metrics output.MetricsCollector) *Instrumented {
	return &Instrumented{next: next, metrics: metrics}
}

func (s *Instrumented) observe(op string, start time.Time, err error) {
	s.metrics.IncStorageOperations(op, err == nil)
	s.metrics.ObserveStorageDuration(op, time.Since(start))
}

// List implements ObjectStorage.
func (s *Instrumented) List(ctx context.Context) ([]output.StorageObject, error) {
	start := time.Now()
	objects, err := s.next.List(ctx)
	s.observe(opList, start, err)
	return objects, err
}

// Download implements ObjectStorage.
func (s *Instrumented) Download(ctx context.Context, key, dest string) error {
	start := time.Now()
	err := s.next.Download(ctx, key, dest)
	s.observe(opDownload, start, err)
	return err
}

// GetReader implements ObjectStorage.
func (s *Instrumented) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := s.next.GetReader(ctx, key)
	s.observe(opRead, start, err)
	return rc, err
}

// Exists implements ObjectStorage.
func (s *Instrumented) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := s.next.Exists(ctx, key)
	s.observe(opExists, start, err)
	return ok, err
}
