package domain

import "time"

// DiagnosticKind classifies a non-fatal problem met during a relation query.
type DiagnosticKind string

const (
	DiagnosticPredicateFailure    DiagnosticKind = "predicate_failure"
	DiagnosticPrepareFailure      DiagnosticKind = "prepare_failure"
	DiagnosticReprojectionFailure DiagnosticKind = "reprojection_failure"
)

// Diagnostic records a per-feature problem that did not abort the run.
// ReferenceID is only meaningful for predicate_failure; the other kinds
// concern the target alone and leave it zero.
type Diagnostic struct {
	Kind        DiagnosticKind `json:"kind"`
	TargetID    FeatureID      `json:"target_id"`
	ReferenceID FeatureID      `json:"reference_id"`
	Message     string         `json:"message"`
}

// RelationResult is the outcome of one relation query run.
type RelationResult struct {
	Matched          FeatureIDSet
	InvalidTarget    FeatureIDSet
	InvalidReference FeatureIDSet
	Diagnostics      []Diagnostic
}

// NewRelationResult returns a result with empty, non-nil sets.
func NewRelationResult() *RelationResult {
	return &RelationResult{
		Matched:          NewFeatureIDSet(),
		InvalidTarget:    NewFeatureIDSet(),
		InvalidReference: NewFeatureIDSet(),
	}
}

// LayerRef identifies one side of a relation query. Either Package and
// Layer name a registered GeoPackage layer, or GeoJSON carries an inline
// FeatureCollection whose coordinates are in SRID.
type LayerRef struct {
	Package   string      `json:"package,omitempty"`
	Layer     string      `json:"layer,omitempty"`
	Selection []FeatureID `json:"selection,omitempty"`
	GeoJSON   []byte      `json:"-"`
	SRID      int         `json:"srid,omitempty"`
}

// IsInline reports whether the reference carries its own features.
func (r LayerRef) IsInline() bool {
	return len(r.GeoJSON) > 0
}

// SelectedOnly reports whether only the selected subset should be read.
func (r LayerRef) SelectedOnly() bool {
	return len(r.Selection) > 0
}

// Validate checks that the reference names exactly one source.
func (r LayerRef) Validate(field string) error {
	switch {
	case r.IsInline() && (r.Package != "" || r.Layer != ""):
		return &ValidationError{
			Field:      field,
			Value:      r.Package + ":" + r.Layer,
			Constraint: "package/layer or geojson",
			Message:    "layer reference must not combine a package layer with inline geojson",
		}
	case !r.IsInline() && (r.Package == "" || r.Layer == ""):
		return &ValidationError{
			Field:      field,
			Value:      r.Package + ":" + r.Layer,
			Constraint: "package and layer required",
			Message:    "layer reference needs both package and layer",
		}
	}
	return nil
}

// SpatialQueryRequest is the application-level query input.
type SpatialQueryRequest struct {
	Relation  string
	Target    LayerRef
	Reference LayerRef
}

// SpatialQueryResponse is the application-level query output. Id lists are
// sorted ascending.
type SpatialQueryResponse struct {
	Relation         Relation
	Matched          []FeatureID
	InvalidTarget    []FeatureID
	InvalidReference []FeatureID
	Diagnostics      []Diagnostic
	TargetCount      int64
	ReferenceCount   int64
	Digest           string
	ProcessingTime   time.Duration
}
