package domain

import "time"

// GeoPackageStatus is the registry lifecycle state of a package.
type GeoPackageStatus string

// Package lifecycle states.
const (
	StatusLoading   GeoPackageStatus = "loading"
	StatusReady     GeoPackageStatus = "ready"
	StatusError     GeoPackageStatus = "error"
	StatusUnloading GeoPackageStatus = "unloading"
)

// GeoPackage is an opened GeoPackage file. ID is the file name without
// extension and addresses the package in queries.
type GeoPackage struct {
	ID          string
	Name        string
	Path        string
	Size        int64
	Description string
	Layers      []Layer
	LoadedAt    time.Time
	LastQueried time.Time
}

// IsReady reports whether the package was opened and has a layer that can
// take part in a relation query.
func (g *GeoPackage) IsReady() bool {
	if g.LoadedAt.IsZero() {
		return false
	}
	for i := range g.Layers {
		if g.Layers[i].Queryable() {
			return true
		}
	}
	return false
}

func (g *GeoPackage) LayerCount() int { return len(g.Layers) }

// GetLayer finds a layer by table name.
func (g *GeoPackage) GetLayer(name string) (*Layer, bool) {
	for i := range g.Layers {
		if g.Layers[i].Name == name {
			return &g.Layers[i], true
		}
	}
	return nil, false
}

// Layer is a feature table listed in gpkg_contents.
type Layer struct {
	Name           string
	Description    string
	GeometryColumn string
	GeometryType   GeometryType // normalized, e.g. MULTIPOLYGON
	SRID           int
	FeatureCount   int64
	Extent         *Extent // from gpkg_contents, nil when not recorded
}

// Dimension is the topological dimension of the layer's geometry type.
func (l *Layer) Dimension() (Dimension, error) {
	return DimensionOf(l.GeometryType)
}

// Queryable reports whether the geometry type has a known dimension.
// GEOMETRY and GEOMETRYCOLLECTION layers are not.
func (l *Layer) Queryable() bool {
	_, err := l.Dimension()
	return err == nil
}
