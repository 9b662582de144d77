package geometry

import (
	"fmt"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/jobrunner/spatialquery/internal/domain"
	"github.com/jobrunner/spatialquery/internal/ports/output"
)

// Engine evaluates DE-9IM named predicates with simplefeatures.
type Engine struct{}

// NewEngine creates a predicate engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Prepare implements output.PredicateEngine.
func (e *Engine) Prepare(g domain.Geometry) (output.PreparedGeometry, error) {
	s, err := AsShape(g)
	if err != nil {
		return nil, err
	}
	if s.IsEmpty() {
		return nil, fmt.Errorf("%w: empty geometry", domain.ErrInvalidGeometry)
	}
	return &prepared{g: s.Geometry()}, nil
}

type prepared struct {
	g geom.Geometry
}

type relateFunc func(a, b geom.Geometry) (bool, error)

// eval runs fn against other. Engine panics are returned as errors.
func (p *prepared) eval(name string, other domain.Geometry, fn relateFunc) (ok bool, err error) {
	o, err := AsShape(other)
	if err != nil {
		return false, err
	}
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("%s: %v", name, r)
		}
	}()
	ok, err = fn(p.g, o.Geometry())
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return ok, nil
}

func (p *prepared) Intersects(other domain.Geometry) (bool, error) {
	return p.eval("intersects", other, func(a, b geom.Geometry) (bool, error) {
		return geom.Intersects(a, b), nil
	})
}

func (p *prepared) Disjoint(other domain.Geometry) (bool, error) {
	return p.eval("disjoint", other, geom.Disjoint)
}

func (p *prepared) Touches(other domain.Geometry) (bool, error) {
	return p.eval("touches", other, geom.Touches)
}

func (p *prepared) Crosses(other domain.Geometry) (bool, error) {
	return p.eval("crosses", other, geom.Crosses)
}

func (p *prepared) Within(other domain.Geometry) (bool, error) {
	return p.eval("within", other, geom.Within)
}

func (p *prepared) Contains(other domain.Geometry) (bool, error) {
	return p.eval("contains", other, geom.Contains)
}

func (p *prepared) Overlaps(other domain.Geometry) (bool, error) {
	return p.eval("overlaps", other, geom.Overlaps)
}

func (p *prepared) Equals(other domain.Geometry) (bool, error) {
	return p.eval("equals", other, geom.Equals)
}
