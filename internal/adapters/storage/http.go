package storage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jobrunner/spatialquery/internal/config"
	"github.com/jobrunner/spatialquery/internal/ports/output"
)

// Defaults for HTTP storage.
const (
	DefaultIndexFile   = "index.txt"
	DefaultHTTPTimeout = 5 * time.Minute
)

// HTTPStorage serves packages from a web server. The package list is read
// from an index file with one relative key per line; blank lines and lines
// starting with # are ignored.
type HTTPStorage struct {
	client    *http.Client
	baseURL   string
	indexFile string
	username  string
	password  string
}

// NewHTTPStorage creates an HTTP storage adapter.
func NewHTTPStorage(cfg config.HTTPConfig) *HTTPStorage {
	if cfg.IndexFile == "" {
		cfg.IndexFile = DefaultIndexFile
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPTimeout
	}

	return &HTTPStorage{
		client:    &http.Client{Timeout: cfg.Timeout},
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		indexFile: cfg.IndexFile,
		username:  cfg.Username,
		password:  cfg.Password,
	}
}

// do sends a request for key and fails on any status other than 200.
func (s *HTTPStorage) do(ctx context.Context, method, key string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+"/"+strings.TrimPrefix(key, "/"), nil)
	if err != nil {
		return nil, err
	}
	if s.username != "" {
		req.SetBasicAuth(s.username, s.password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return resp, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp, nil
}

// List reads the index file.
func (s *HTTPStorage) List(ctx context.Context) ([]output.StorageObject, error) {
	resp, err := s.do(ctx, http.MethodGet, s.indexFile)
	if err != nil {
		return nil, storageError(opList, s.indexFile, err)
	}
	defer func() { _ = resp.Body.Close() }()

	objects, err := parseIndex(resp.Body)
	if err != nil {
		return nil, storageError(opList, s.indexFile, err)
	}
	return objects, nil
}

func parseIndex(r io.Reader) ([]output.StorageObject, error) {
	var objects []output.StorageObject
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || !isPackageKey(line) {
			continue
		}
		objects = append(objects, output.StorageObject{Key: line})
	}
	return objects, scanner.Err()
}

// Download writes the file behind key to dest.
func (s *HTTPStorage) Download(ctx context.Context, key, dest string) error {
	return download(ctx, s, key, dest)
}

// GetReader streams the file behind key.
func (s *HTTPStorage) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.do(ctx, http.MethodGet, key)
	if err != nil {
		return nil, storageError(opRead, key, err)
	}
	return resp.Body, nil
}

// Exists issues a HEAD request. A 404 means false; transport errors and
// other statuses are returned.
func (s *HTTPStorage) Exists(ctx context.Context, key string) (bool, error) {
	resp, err := s.do(ctx, http.MethodHead, key)
	if err == nil {
		_ = resp.Body.Close()
		return true, nil
	}
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, storageError(opExists, key, err)
}
