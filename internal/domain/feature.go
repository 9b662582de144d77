package domain

import (
	"slices"
	"strings"
)

// FeatureID is the stable identifier of a feature within its layer (the fid).
type FeatureID int64

// Geometry is the minimal view of a geometry the query engine needs.
// Adapters provide the concrete implementation.
type Geometry interface {
	BoundingBox() Extent
	IsEmpty() bool
}

// Feature represents a geo feature with its geometry.
type Feature struct {
	ID        FeatureID // Feature ID (fid)
	LayerName string    // Associated layer name
	Geometry  Geometry  // Geometry data, nil when missing
}

// HasValidGeometry returns true if the feature carries a non-empty geometry.
func (f *Feature) HasValidGeometry() bool {
	return f.Geometry != nil && !f.Geometry.IsEmpty()
}

// FeatureIDSet is an unordered set of feature ids.
type FeatureIDSet map[FeatureID]struct{}

// NewFeatureIDSet creates a set holding the given ids.
func NewFeatureIDSet(ids ...FeatureID) FeatureIDSet {
	s := make(FeatureIDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts an id into the set.
func (s FeatureIDSet) Add(id FeatureID) {
	s[id] = struct{}{}
}

// Contains reports whether id is in the set.
func (s FeatureIDSet) Contains(id FeatureID) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of ids in the set.
func (s FeatureIDSet) Len() int {
	return len(s)
}

// Sorted returns the ids in ascending order.
func (s FeatureIDSet) Sorted() []FeatureID {
	ids := make([]FeatureID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Equal reports whether both sets hold the same ids.
func (s FeatureIDSet) Equal(o FeatureIDSet) bool {
	if len(s) != len(o) {
		return false
	}
	for id := range s {
		if !o.Contains(id) {
			return false
		}
	}
	return true
}

// GeometryType represents the type of a geometry.
type GeometryType string

// Geometry type constants.
const (
	GeomPoint              GeometryType = "POINT"
	GeomLineString         GeometryType = "LINESTRING"
	GeomPolygon            GeometryType = "POLYGON"
	GeomMultiPoint         GeometryType = "MULTIPOINT"
	GeomMultiLineString    GeometryType = "MULTILINESTRING"
	GeomMultiPolygon       GeometryType = "MULTIPOLYGON"
	GeomGeometryCollection GeometryType = "GEOMETRYCOLLECTION"
	GeomGeometry           GeometryType = "GEOMETRY"
)

// NormalizeGeometryType upper-cases a geometry type name and strips Z/M suffixes.
func NormalizeGeometryType(s string) GeometryType {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, suffix := range []string{" ZM", " Z", " M", "ZM"} {
		s = strings.TrimSuffix(s, suffix)
	}
	return GeometryType(s)
}
