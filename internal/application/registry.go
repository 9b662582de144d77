// Package application contains the application services.
package application

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/jobrunner/spatialquery/internal/domain"
	"github.com/jobrunner/spatialquery/internal/ports/input"
	"github.com/jobrunner/spatialquery/internal/ports/output"
)

// PackageRegistry tracks the GeoPackages available to queries and keeps them
// in step with object storage. Packages fetched from storage are cached
// under cacheDir.
type PackageRegistry struct {
	repo      output.GeoPackageRepository
	storage   output.ObjectStorage
	metrics   output.MetricsCollector
	logger    *slog.Logger
	localPath string

	mu       sync.RWMutex
	packages map[string]*packageEntry
}

type packageEntry struct {
	pkg    *domain.GeoPackage
	status domain.GeoPackageStatus
	err    error
	source output.StorageObject // zero when loaded from a path
}

// NewPackageRegistry creates a new package registry caching downloads in
// localPath.
func NewPackageRegistry(
	repo output.GeoPackageRepository,
	storage output.ObjectStorage,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	localPath string,
) *PackageRegistry {
	return &PackageRegistry{
		repo:      repo,
		storage:   storage,
		metrics:   metrics,
		logger:    logger,
		localPath: localPath,
		packages:  make(map[string]*packageEntry),
	}
}

// LoadPackage opens the GeoPackage at path and registers it. A package
// without any queryable layer is registered with StatusError.
func (r *PackageRegistry) LoadPackage(ctx context.Context, path string) error {
	return r.load(ctx, path, output.StorageObject{})
}

func (r *PackageRegistry) load(ctx context.Context, path string, source output.StorageObject) error {
	pkg, err := r.repo.Open(ctx, path)
	if err != nil {
		r.logger.Error("failed to open package", "path", path, "error", err)
		return err
	}

	entry := &packageEntry{pkg: pkg, status: domain.StatusReady, source: source}
	for _, layer := range pkg.Layers {
		if !layer.Queryable() {
			r.logger.Warn("layer has unsupported geometry type",
				"package", pkg.ID, "layer", layer.Name, "geometry_type", layer.GeometryType)
		}
	}
	if !pkg.IsReady() {
		entry.status = domain.StatusError
		entry.err = fmt.Errorf("%w: package %s has no queryable layer", domain.ErrUnsupportedGeometryType, pkg.ID)
	}

	r.mu.Lock()
	r.packages[pkg.ID] = entry
	r.mu.Unlock()
	r.updateMetrics()

	r.logger.Info("package registered",
		"id", pkg.ID,
		"path", path,
		"layers", len(pkg.Layers),
		"status", entry.status,
	)
	return nil
}

// UnloadPackage closes a package and forgets it. Unknown ids are a no-op.
func (r *PackageRegistry) UnloadPackage(ctx context.Context, packageID string) error {
	r.mu.Lock()
	entry, ok := r.packages[packageID]
	if ok {
		entry.status = domain.StatusUnloading
	}
	r.mu.Unlock()

	if err := r.repo.Close(ctx, packageID); err != nil {
		r.logger.Error("failed to close package", "id", packageID, "error", err)
		return err
	}

	r.mu.Lock()
	delete(r.packages, packageID)
	r.mu.Unlock()
	r.updateMetrics()

	if ok {
		r.logger.Info("package unloaded", "id", packageID)
	}
	return nil
}

func (r *PackageRegistry) lookup(id string) (*packageEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.packages[id]
	if !ok {
		return nil, domain.ErrPackageNotFound
	}
	return entry, nil
}

// ListPackages returns the registered packages ordered by id.
func (r *PackageRegistry) ListPackages(_ context.Context) ([]domain.GeoPackage, error) {
	r.mu.RLock()
	packages := make([]domain.GeoPackage, 0, len(r.packages))
	for _, entry := range r.packages {
		if entry.pkg != nil {
			packages = append(packages, *entry.pkg)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(packages, func(a, b domain.GeoPackage) int { return cmp.Compare(a.ID, b.ID) })
	return packages, nil
}

// GetPackage returns a registered package by id.
func (r *PackageRegistry) GetPackage(_ context.Context, id string) (*domain.GeoPackage, error) {
	entry, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return entry.pkg, nil
}

// GetPackageStatus returns the status of a registered package.
func (r *PackageRegistry) GetPackageStatus(_ context.Context, id string) (domain.GeoPackageStatus, error) {
	entry, err := r.lookup(id)
	if err != nil {
		return "", err
	}
	return entry.status, nil
}

// Layer returns a feature layer of a ready package.
func (r *PackageRegistry) Layer(ctx context.Context, packageID, layerName string, selection []domain.FeatureID) (output.FeatureLayer, error) {
	r.mu.Lock()
	entry, ok := r.packages[packageID]
	var status domain.GeoPackageStatus
	var loadErr error
	if ok {
		status, loadErr = entry.status, entry.err
		if entry.pkg != nil {
			entry.pkg.LastQueried = time.Now()
		}
	}
	r.mu.Unlock()

	switch {
	case !ok:
		return nil, domain.ErrPackageNotFound
	case loadErr != nil:
		return nil, loadErr
	case status != domain.StatusReady:
		return nil, fmt.Errorf("package %s is %s: %w", packageID, status, domain.ErrNotReady)
	}

	return r.repo.Layer(ctx, packageID, layerName, selection)
}

// IsReady reports whether a package can serve queries.
func (r *PackageRegistry) IsReady(packageID string) bool {
	entry, err := r.lookup(packageID)
	return err == nil && entry.status == domain.StatusReady
}

// ReadyPackageIDs returns the ids of all ready packages in ascending order.
func (r *PackageRegistry) ReadyPackageIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.packages))
	for id, entry := range r.packages {
		if entry.status == domain.StatusReady {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// IsLoaded reports whether a package with the given id is registered.
func (r *PackageRegistry) IsLoaded(packageID string) bool {
	_, err := r.lookup(packageID)
	return err == nil
}

// PackageCount returns the number of registered packages.
func (r *PackageRegistry) PackageCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.packages)
}

// Counts returns the number of registered and of ready packages.
func (r *PackageRegistry) Counts() (total, ready int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entry := range r.packages {
		if entry.status == domain.StatusReady {
			ready++
		}
	}
	return len(r.packages), ready
}

// States returns the status of every registered package ordered by id,
// including why a package failed.
func (r *PackageRegistry) States() []input.PackageState {
	r.mu.RLock()
	states := make([]input.PackageState, 0, len(r.packages))
	for id, entry := range r.packages {
		state := input.PackageState{ID: id, Status: entry.status}
		if entry.err != nil {
			state.Error = entry.err.Error()
		}
		states = append(states, state)
	}
	r.mu.RUnlock()

	slices.SortFunc(states, func(a, b input.PackageState) int { return cmp.Compare(a.ID, b.ID) })
	return states
}

func (r *PackageRegistry) updateMetrics() {
	total, ready := r.Counts()
	r.metrics.SetPackagesLoaded(total)
	r.metrics.SetPackagesReady(ready)
}

// fetch downloads an object into the cache and registers it.
func (r *PackageRegistry) fetch(ctx context.Context, obj output.StorageObject) error {
	path := filepath.Join(r.localPath, filepath.FromSlash(obj.Key))
	if err := r.storage.Download(ctx, obj.Key, path); err != nil {
		return err
	}
	return r.load(ctx, path, obj)
}

// LoadAll registers every package in storage. Failing packages are logged
// and skipped; only a failing listing is returned.
func (r *PackageRegistry) LoadAll(ctx context.Context) error {
	objects, err := r.storage.List(ctx)
	if err != nil {
		return err
	}

	r.logger.Info("loading packages from storage", "objects", len(objects))
	for _, obj := range objects {
		if err := r.fetch(ctx, obj); err != nil {
			r.logger.Error("failed to load package", "key", obj.Key, "error", err)
		}
	}
	return nil
}

// SyncStats counts what a sync changed.
type SyncStats struct {
	Added   int
	Updated int
	Removed int
}

// Sync fetches packages that are new or changed in storage and unloads
// packages storage no longer lists, deleting their cached copy.
func (r *PackageRegistry) Sync(ctx context.Context) (SyncStats, error) {
	objects, err := r.storage.List(ctx)
	if err != nil {
		return SyncStats{}, err
	}

	remote := make(map[string]output.StorageObject, len(objects))
	for _, obj := range objects {
		remote[derivePackageID(obj.Key)] = obj
	}

	var stats SyncStats
	for id, obj := range remote {
		entry, err := r.lookup(id)
		loaded := err == nil
		if loaded && !changed(entry.source, obj) {
			continue
		}
		if loaded {
			if err := r.UnloadPackage(ctx, id); err != nil {
				continue
			}
		}

		if err := r.fetch(ctx, obj); err != nil {
			r.logger.Error("failed to sync package", "key", obj.Key, "error", err)
			continue
		}
		if loaded {
			stats.Updated++
		} else {
			stats.Added++
		}
	}

	for _, id := range r.findPackagesToRemove(remote) {
		path := r.packagePath(id)
		if err := r.UnloadPackage(ctx, id); err != nil {
			continue
		}
		if path != "" {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				r.logger.Warn("failed to delete cached package", "path", path, "error", err)
			}
		}
		stats.Removed++
	}

	r.logger.Info("registry synced",
		"added", stats.Added,
		"updated", stats.Updated,
		"removed", stats.Removed,
		"total", r.PackageCount(),
	)
	return stats, nil
}

// changed reports whether a listed object differs from the one a package was
// fetched from. Packages loaded from a path are never considered changed.
func changed(source, listed output.StorageObject) bool {
	switch {
	case source.Key == "":
		return false
	case source.ETag != "" && listed.ETag != "":
		return source.ETag != listed.ETag
	default:
		return !source.LastModified.Equal(listed.LastModified) || source.Size != listed.Size
	}
}

// findPackagesToRemove returns the ids of registered packages storage no
// longer lists.
func (r *PackageRegistry) findPackagesToRemove(remote map[string]output.StorageObject) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id := range r.packages {
		if _, ok := remote[id]; !ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (r *PackageRegistry) packagePath(id string) string {
	entry, err := r.lookup(id)
	if err != nil || entry.pkg == nil {
		return ""
	}
	return entry.pkg.Path
}

// derivePackageID extracts a package id from a file path or object key.
func derivePackageID(path string) string {
	base := filepath.Base(filepath.FromSlash(path))
	return base[:len(base)-len(filepath.Ext(base))]
}
