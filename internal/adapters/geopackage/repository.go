// Package geopackage reads feature layers from GeoPackage files and
// reprojects geometries through SpatiaLite.
package geopackage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jobrunner/spatialquery/internal/adapters/geometry"
	"github.com/jobrunner/spatialquery/internal/domain"
	"github.com/jobrunner/spatialquery/internal/ports/output"
)

// DefaultLayerCacheSize is the number of decoded layers kept in memory.
const DefaultLayerCacheSize = 16

// handle is an open package: its read-only connection and metadata.
type handle struct {
	db  *sql.DB
	pkg *domain.GeoPackage
}

// Repository implements output.GeoPackageRepository. A layer is decoded in
// full on first use and then served from an LRU cache keyed by
// "package/layer".
type Repository struct {
	logger *slog.Logger
	layers *lru.Cache[string, *geometry.MemoryLayer]

	mu   sync.RWMutex
	open map[string]handle
}

// NewRepository creates a repository caching up to cacheSize layers.
func NewRepository(cacheSize int, logger *slog.Logger) (*Repository, error) {
	registerDrivers()

	if cacheSize <= 0 {
		cacheSize = DefaultLayerCacheSize
	}
	cache, err := lru.New[string, *geometry.MemoryLayer](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating layer cache: %w", err)
	}
	return &Repository{logger: logger, layers: cache, open: make(map[string]handle)}, nil
}

// Open opens the GeoPackage at path read-only and reads its feature layers.
// Opening a package id twice returns the first package.
func (r *Repository) Open(ctx context.Context, path string) (*domain.GeoPackage, error) {
	id := DerivePackageID(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.open[id]; ok {
		return h.pkg, nil
	}

	db, err := openReadOnly(ctx, path)
	if err != nil {
		return nil, &domain.StorageError{Operation: "open", Key: path, Err: err}
	}

	layers, err := readLayers(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, &domain.StorageError{Operation: "open", Key: path, Err: err}
	}

	pkg := &domain.GeoPackage{
		ID:       id,
		Name:     id,
		Path:     path,
		Layers:   layers,
		LoadedAt: time.Now(),
	}
	if info, err := os.Stat(path); err == nil {
		pkg.Size = info.Size()
	}
	if len(layers) > 0 {
		pkg.Description = layers[0].Description
	}

	r.open[id] = handle{db: db, pkg: pkg}
	return pkg, nil
}

// Close closes a package and evicts its cached layers. Unknown ids are a
// no-op.
func (r *Repository) Close(_ context.Context, packageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.open[packageID]
	if !ok {
		return nil
	}
	if err := h.db.Close(); err != nil {
		return err
	}
	delete(r.open, packageID)

	prefix := packageID + "/"
	for _, key := range r.layers.Keys() {
		if strings.HasPrefix(key, prefix) {
			r.layers.Remove(key)
		}
	}
	return nil
}

// Layer returns a feature layer of an open package with the given selection.
func (r *Repository) Layer(ctx context.Context, packageID, layerName string, selection []domain.FeatureID) (output.FeatureLayer, error) {
	r.mu.RLock()
	h, ok := r.open[packageID]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrPackageNotFound
	}

	meta, found := h.pkg.GetLayer(layerName)
	if !found {
		return nil, &domain.QueryError{PackageID: packageID, Layer: layerName, Err: domain.ErrLayerNotFound}
	}

	key := packageID + "/" + layerName
	if cached, ok := r.layers.Get(key); ok {
		return cached.WithSelection(selection), nil
	}

	start := time.Now()
	features, err := readFeatures(ctx, h.db, meta, r.logger)
	if err != nil {
		return nil, &domain.QueryError{PackageID: packageID, Layer: layerName, Err: err}
	}
	decoded := geometry.NewMemoryLayer(meta.Name, meta.SRID, meta.GeometryType, features, nil)
	r.layers.Add(key, decoded)

	r.logger.Debug("layer decoded",
		"package", packageID,
		"layer", layerName,
		"features", len(features),
		"duration", time.Since(start),
	)
	return decoded.WithSelection(selection), nil
}

func openReadOnly(ctx context.Context, path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open(driverGeoPackage, "file:"+path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// DerivePackageID returns the file name of path without its extension.
func DerivePackageID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
