// Package domain holds the relation query model: features, layers,
// relations and results.
package domain

import (
	"fmt"
	"math"
)

// SRIDUndefined marks a layer without a spatial reference system.
const SRIDUndefined = 0

// Extent is an axis-aligned bounding box. The zero value is the degenerate
// box at the origin.
type Extent struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// NewExtent returns the box spanned by two corners given in any order.
func NewExtent(x1, y1, x2, y2 float64) Extent {
	return Extent{
		MinX: min(x1, x2), MinY: min(y1, y2),
		MaxX: max(x1, x2), MaxY: max(y1, y2),
	}
}

// IsValid rejects inverted boxes and NaN coordinates.
func (e Extent) IsValid() bool {
	return e.MinX <= e.MaxX && e.MinY <= e.MaxY
}

// Intersects is true for boxes sharing at least a boundary point.
func (e Extent) Intersects(o Extent) bool {
	return e.MinX <= o.MaxX && o.MinX <= e.MaxX &&
		e.MinY <= o.MaxY && o.MinY <= e.MaxY
}

// Expand pads the box by d on every side.
func (e Extent) Expand(d float64) Extent {
	return Extent{MinX: e.MinX - d, MinY: e.MinY - d, MaxX: e.MaxX + d, MaxY: e.MaxY + d}
}

// MaxAbs is the largest coordinate magnitude, used to scale tolerances.
func (e Extent) MaxAbs() float64 {
	return max(math.Abs(e.MinX), math.Abs(e.MaxX), math.Abs(e.MinY), math.Abs(e.MaxY))
}

func (e Extent) String() string {
	return fmt.Sprintf("BOX(%g %g, %g %g)", e.MinX, e.MinY, e.MaxX, e.MaxY)
}
