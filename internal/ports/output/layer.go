package output

import (
	"context"

	"github.com/jobrunner/spatialquery/internal/domain"
)

// FeatureLayer is a readable collection of features sharing one geometry
// type and spatial reference system.
type FeatureLayer interface {
	Name() string
	SRID() int
	GeometryType() domain.GeometryType

	// FeatureCount returns the number of features Features would yield.
	FeatureCount(selectedOnly bool) int64

	// Features starts a pass over the layer. The caller must Close the reader.
	Features(ctx context.Context, selectedOnly bool) (FeatureReader, error)
}

// FeatureReader iterates the features of a layer.
//
//	for r.Next() {
//		f := r.Feature()
//	}
//	if err := r.Err(); err != nil { ... }
type FeatureReader interface {
	Next() bool
	Feature() domain.Feature
	Err() error
	Close() error
}

// LayerDecoder builds in-memory layers from encoded feature collections.
type LayerDecoder interface {
	// DecodeGeoJSON decodes a GeoJSON FeatureCollection. Features without an
	// id are numbered from 1 in document order.
	DecodeGeoJSON(name string, data []byte, srid int, selection []domain.FeatureID) (FeatureLayer, error)
}
