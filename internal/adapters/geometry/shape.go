// Package geometry provides the planar geometry model, the predicate engine
// and the spatial index used by relation queries.
package geometry

import (
	"context"
	"fmt"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/jobrunner/spatialquery/internal/domain"
	"github.com/jobrunner/spatialquery/internal/ports/output"
)

// Shape adapts a simplefeatures geometry to domain.Geometry. The bounding
// box is computed once.
type Shape struct {
	g   geom.Geometry
	box domain.Extent
}

// NewShape wraps g.
func NewShape(g geom.Geometry) *Shape {
	s := &Shape{g: g}
	if lo, hi, ok := g.Envelope().MinMaxXYs(); ok {
		s.box = domain.NewExtent(lo.X, lo.Y, hi.X, hi.Y)
	}
	return s
}

// FromWKB decodes an ISO or extended WKB geometry.
func FromWKB(wkb []byte) (*Shape, error) {
	g, err := geom.UnmarshalWKB(wkb)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidGeometry, err)
	}
	return NewShape(g), nil
}

// FromWKT decodes a WKT geometry.
func FromWKT(wkt string) (*Shape, error) {
	g, err := geom.UnmarshalWKT(wkt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidGeometry, err)
	}
	return NewShape(g), nil
}

// MustWKT is FromWKT for literals known to be valid. It panics on error.
func MustWKT(wkt string) *Shape {
	s, err := FromWKT(wkt)
	if err != nil {
		panic(err)
	}
	return s
}

// BoundingBox implements domain.Geometry.
func (s *Shape) BoundingBox() domain.Extent {
	return s.box
}

// IsEmpty implements domain.Geometry.
func (s *Shape) IsEmpty() bool {
	return s.g.IsEmpty()
}

// Geometry returns the wrapped geometry.
func (s *Shape) Geometry() geom.Geometry {
	return s.g
}

// Type returns the normalized geometry type name.
func (s *Shape) Type() domain.GeometryType {
	return domain.NormalizeGeometryType(s.g.Type().String())
}

// WKB returns the geometry as WKB.
func (s *Shape) WKB() []byte {
	return s.g.AsBinary()
}

// String returns the geometry as WKT.
func (s *Shape) String() string {
	return s.g.AsText()
}

// AsShape returns g as a Shape. Geometries built by other adapters are
// rejected.
func AsShape(g domain.Geometry) (*Shape, error) {
	s, ok := g.(*Shape)
	if !ok || s == nil {
		return nil, fmt.Errorf("%w: unsupported geometry implementation %T", domain.ErrInvalidGeometry, g)
	}
	return s, nil
}

// Identity is an output.Reprojector for layers that already share a
// spatial reference system.
type Identity struct{}

// Transform returns g unchanged.
func (Identity) Transform(_ context.Context, g domain.Geometry) (domain.Geometry, error) {
	return g, nil
}

// IdentityFactory is an output.ReprojectorFactory that only supports layers
// sharing a spatial reference system. SRID 0 is treated as unknown and
// matches anything.
type IdentityFactory struct{}

// NewReprojector implements output.ReprojectorFactory.
func (IdentityFactory) NewReprojector(_ context.Context, fromSRID, toSRID int) (output.Reprojector, error) {
	if fromSRID == toSRID || fromSRID == 0 || toSRID == 0 {
		return Identity{}, nil
	}
	return nil, fmt.Errorf("%w: EPSG:%d to EPSG:%d without a reprojection backend",
		domain.ErrUnsupportedProjection, fromSRID, toSRID)
}
