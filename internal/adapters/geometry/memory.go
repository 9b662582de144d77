package geometry

import (
	"context"

	"github.com/jobrunner/spatialquery/internal/domain"
	"github.com/jobrunner/spatialquery/internal/ports/output"
)

// MemoryLayer is a read-only output.FeatureLayer over decoded features.
// Several readers may iterate it concurrently.
type MemoryLayer struct {
	name      string
	srid      int
	geomType  domain.GeometryType
	features  []domain.Feature
	selection domain.FeatureIDSet
	selected  int64
}

// NewMemoryLayer creates a layer. Selection ids that do not exist in the
// layer are ignored.
func NewMemoryLayer(name string, srid int, geomType domain.GeometryType, features []domain.Feature, selection []domain.FeatureID) *MemoryLayer {
	l := &MemoryLayer{
		name:      name,
		srid:      srid,
		geomType:  geomType,
		features:  features,
		selection: domain.NewFeatureIDSet(selection...),
	}
	for i := range features {
		if l.selection.Contains(features[i].ID) {
			l.selected++
		}
	}
	return l
}

// WithSelection returns a view of the layer sharing its features with a
// different selection.
func (l *MemoryLayer) WithSelection(selection []domain.FeatureID) *MemoryLayer {
	return NewMemoryLayer(l.name, l.srid, l.geomType, l.features, selection)
}

// Name implements output.FeatureLayer.
func (l *MemoryLayer) Name() string { return l.name }

// SRID implements output.FeatureLayer.
func (l *MemoryLayer) SRID() int { return l.srid }

// GeometryType implements output.FeatureLayer.
func (l *MemoryLayer) GeometryType() domain.GeometryType { return l.geomType }

// FeatureCount implements output.FeatureLayer.
func (l *MemoryLayer) FeatureCount(selectedOnly bool) int64 {
	if selectedOnly {
		return l.selected
	}
	return int64(len(l.features))
}

// Features implements output.FeatureLayer.
func (l *MemoryLayer) Features(_ context.Context, selectedOnly bool) (output.FeatureReader, error) {
	r := &sliceReader{features: l.features, pos: -1}
	if selectedOnly {
		r.filter = l.selection
	}
	return r, nil
}

type sliceReader struct {
	features []domain.Feature
	filter   domain.FeatureIDSet
	pos      int
	closed   bool
}

func (r *sliceReader) Next() bool {
	if r.closed {
		return false
	}
	for r.pos+1 < len(r.features) {
		r.pos++
		if r.filter == nil || r.filter.Contains(r.features[r.pos].ID) {
			return true
		}
	}
	return false
}

func (r *sliceReader) Feature() domain.Feature {
	return r.features[r.pos]
}

func (r *sliceReader) Err() error { return nil }

func (r *sliceReader) Close() error {
	r.closed = true
	return nil
}

// LayerGeometryType derives a layer geometry type from its features. Mixed
// single and multi types of one dimension collapse to the multi type; mixed
// dimensions yield GEOMETRY.
func LayerGeometryType(features []domain.Feature) domain.GeometryType {
	var (
		first  domain.GeometryType
		dim    = -1
		same   = true
		anyGeo bool
	)
	for i := range features {
		s, ok := features[i].Geometry.(*Shape)
		if !ok || s == nil || s.IsEmpty() {
			continue
		}
		t := s.Type()
		d, err := domain.DimensionOf(t)
		if err != nil {
			return domain.GeomGeometry
		}
		if !anyGeo {
			first, dim, anyGeo = t, int(d), true
			continue
		}
		if int(d) != dim {
			return domain.GeomGeometry
		}
		if t != first {
			same = false
		}
	}
	switch {
	case !anyGeo:
		return domain.GeomGeometry
	case same:
		return first
	}
	switch domain.Dimension(dim) {
	case domain.DimPoint:
		return domain.GeomMultiPoint
	case domain.DimLine:
		return domain.GeomMultiLineString
	default:
		return domain.GeomMultiPolygon
	}
}
