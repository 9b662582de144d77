package domain

import (
	"fmt"
	"strings"
)

// Relation is a named topological predicate between two geometries.
type Relation int

// Supported relations.
const (
	Intersects Relation = iota + 1
	Disjoint
	Touches
	Crosses
	Within
	Equals
	Overlaps
	Contains
)

var relationNames = map[Relation]string{
	Intersects: "intersects",
	Disjoint:   "disjoint",
	Touches:    "touches",
	Crosses:    "crosses",
	Within:     "within",
	Equals:     "equals",
	Overlaps:   "overlaps",
	Contains:   "contains",
}

// AllRelations lists every supported relation in declaration order.
var AllRelations = []Relation{Intersects, Disjoint, Touches, Crosses, Within, Equals, Overlaps, Contains}

// String returns the lower-case relation name.
func (r Relation) String() string {
	if name, ok := relationNames[r]; ok {
		return name
	}
	return fmt.Sprintf("relation(%d)", int(r))
}

// IsValid reports whether r is one of the supported relations.
func (r Relation) IsValid() bool {
	_, ok := relationNames[r]
	return ok
}

// ParseRelation parses a relation name, case-insensitively.
// "is disjoint" and "isdisjoint" are accepted as aliases of disjoint.
func ParseRelation(s string) (Relation, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "is disjoint", "isdisjoint", "is_disjoint":
		return Disjoint, nil
	case "equal", "isequal":
		return Equals, nil
	}
	for r, n := range relationNames {
		if n == name {
			return r, nil
		}
	}
	return 0, &ConfigError{
		Field:   "relation",
		Message: fmt.Sprintf("unknown relation %q", s),
		Err:     ErrUnknownRelation,
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Relation) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRelation, int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Relation) UnmarshalText(text []byte) error {
	parsed, err := ParseRelation(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Dimension is the topological dimension of a geometry type.
type Dimension int

// Geometry dimensions.
const (
	DimPoint   Dimension = 0
	DimLine    Dimension = 1
	DimPolygon Dimension = 2
)

// String returns the dimension name.
func (d Dimension) String() string {
	switch d {
	case DimPoint:
		return "point"
	case DimLine:
		return "line"
	case DimPolygon:
		return "polygon"
	default:
		return fmt.Sprintf("dimension(%d)", int(d))
	}
}

// DimensionOf returns the dimension of a layer geometry type.
func DimensionOf(t GeometryType) (Dimension, error) {
	switch NormalizeGeometryType(string(t)) {
	case GeomPoint, GeomMultiPoint:
		return DimPoint, nil
	case GeomLineString, GeomMultiLineString:
		return DimLine, nil
	case GeomPolygon, GeomMultiPolygon:
		return DimPolygon, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedGeometryType, string(t))
	}
}

// RelationSet is a set of relations.
type RelationSet map[Relation]struct{}

// Has reports whether r is in the set.
func (s RelationSet) Has(r Relation) bool {
	_, ok := s[r]
	return ok
}

// List returns the relations in declaration order.
func (s RelationSet) List() []Relation {
	out := make([]Relation, 0, len(s))
	for _, r := range AllRelations {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

// Names returns the relation names in declaration order.
func (s RelationSet) Names() []string {
	list := s.List()
	names := make([]string, len(list))
	for i, r := range list {
		names[i] = r.String()
	}
	return names
}

func relationSet(rs ...Relation) RelationSet {
	s := make(RelationSet, len(rs))
	for _, r := range rs {
		s[r] = struct{}{}
	}
	return s
}

// ApplicableRelations returns the relations that are meaningful between a
// target of dimension target and a reference of dimension reference, following
// the OGC simple feature access relation table.
func ApplicableRelations(target, reference Dimension) RelationSet {
	ops := relationSet(Intersects, Disjoint)

	switch {
	case reference > target:
		ops[Touches] = struct{}{}
		ops[Crosses] = struct{}{}
		ops[Within] = struct{}{}
	case reference < target:
		ops[Contains] = struct{}{}
	default:
		ops[Equals] = struct{}{}
		ops[Overlaps] = struct{}{}
		switch reference {
		case DimLine:
			ops[Touches] = struct{}{}
			ops[Crosses] = struct{}{}
		case DimPolygon:
			ops[Touches] = struct{}{}
			ops[Within] = struct{}{}
			ops[Contains] = struct{}{}
		}
	}

	return ops
}

// ApplicableRelationsForTypes is ApplicableRelations keyed by layer geometry types.
func ApplicableRelationsForTypes(target, reference GeometryType) (RelationSet, error) {
	dt, err := DimensionOf(target)
	if err != nil {
		return nil, err
	}
	dr, err := DimensionOf(reference)
	if err != nil {
		return nil, err
	}
	return ApplicableRelations(dt, dr), nil
}
