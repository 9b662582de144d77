package geometry

import (
	"fmt"
	"math"
	"slices"

	"github.com/dhconnelly/rtreego"

	"github.com/jobrunner/spatialquery/internal/domain"
	"github.com/jobrunner/spatialquery/internal/ports/output"
)

// Tree fan-out, as used for the population grid in the model tooling.
const (
	minChildren = 25
	maxChildren = 50
)

type indexEntry struct {
	id   domain.FeatureID
	rect rtreego.Rect
}

func (e *indexEntry) Bounds() rtreego.Rect {
	return e.rect
}

// RTree is an output.SpatialIndex over feature bounding boxes.
type RTree struct {
	tree *rtreego.Rtree
}

// NewRTree creates an empty two-dimensional R-tree.
func NewRTree() *RTree {
	return &RTree{tree: rtreego.NewTree(2, minChildren, maxChildren)}
}

// Insert implements output.SpatialIndex.
func (t *RTree) Insert(id domain.FeatureID, g domain.Geometry) error {
	box := g.BoundingBox()
	if !box.IsValid() {
		return fmt.Errorf("%w: feature %d has invalid extent %s", domain.ErrInvalidGeometry, id, box)
	}
	rect, err := rtreego.NewRectFromPoints(
		rtreego.Point{box.MinX, box.MinY},
		rtreego.Point{box.MaxX, box.MaxY},
	)
	if err != nil {
		return fmt.Errorf("indexing feature %d: %w", id, err)
	}
	t.tree.Insert(&indexEntry{id: id, rect: rect})
	return nil
}

// Query implements output.SpatialIndex. rtreego treats boxes that only share
// an edge as disjoint, so the query box is padded by a tolerance relative to
// its coordinate magnitude. Ids are returned in ascending order.
func (t *RTree) Query(box domain.Extent) []domain.FeatureID {
	if t.tree.Size() == 0 || !box.IsValid() {
		return nil
	}
	padded := box.Expand(queryTolerance(box))
	rect, err := rtreego.NewRectFromPoints(
		rtreego.Point{padded.MinX, padded.MinY},
		rtreego.Point{padded.MaxX, padded.MaxY},
	)
	if err != nil {
		return nil
	}

	hits := t.tree.SearchIntersect(rect)
	ids := make([]domain.FeatureID, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.(*indexEntry).id)
	}
	slices.Sort(ids)
	return ids
}

// Len implements output.SpatialIndex.
func (t *RTree) Len() int {
	return t.tree.Size()
}

func queryTolerance(box domain.Extent) float64 {
	return 1e-9 * math.Max(1, box.MaxAbs())
}

// IndexFactory creates R-tree indexes.
type IndexFactory struct{}

// NewIndex implements output.SpatialIndexFactory.
func (IndexFactory) NewIndex() output.SpatialIndex {
	return NewRTree()
}
