package output

import "github.com/jobrunner/spatialquery/internal/domain"

// PredicateEngine prepares geometries for repeated predicate evaluation.
type PredicateEngine interface {
	Prepare(g domain.Geometry) (PreparedGeometry, error)
}

// PreparedGeometry evaluates the named spatial predicates with the prepared
// geometry as the first operand.
type PreparedGeometry interface {
	Intersects(other domain.Geometry) (bool, error)
	Disjoint(other domain.Geometry) (bool, error)
	Touches(other domain.Geometry) (bool, error)
	Crosses(other domain.Geometry) (bool, error)
	Within(other domain.Geometry) (bool, error)
	Contains(other domain.Geometry) (bool, error)
	Overlaps(other domain.Geometry) (bool, error)
	Equals(other domain.Geometry) (bool, error)
}

// SpatialIndex finds features whose bounding boxes intersect a query box.
type SpatialIndex interface {
	Insert(id domain.FeatureID, g domain.Geometry) error

	// Query returns candidate ids. Boxes that only touch the query box are
	// included.
	Query(box domain.Extent) []domain.FeatureID

	Len() int
}

// SpatialIndexFactory creates empty spatial indexes.
type SpatialIndexFactory interface {
	NewIndex() SpatialIndex
}
