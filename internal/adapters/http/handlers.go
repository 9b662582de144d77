package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jobrunner/spatialquery/internal/domain"
)

// maxQueryBodyBytes bounds a query body including inline GeoJSON layers.
const maxQueryBodyBytes = 64 << 20

// LayerRefBody is one side of a relation query: a package layer or an
// inline GeoJSON FeatureCollection.
type LayerRefBody struct {
	Package   string             `json:"package,omitempty"`
	Layer     string             `json:"layer,omitempty"`
	Selection []domain.FeatureID `json:"selection,omitempty"`
	GeoJSON   json.RawMessage    `json:"geojson,omitempty"`
	SRID      int                `json:"srid,omitempty"`
}

// QueryBody is the request body of POST /api/v1/query.
type QueryBody struct {
	Relation  string       `json:"relation"`
	Target    LayerRefBody `json:"target"`
	Reference LayerRefBody `json:"reference"`
}

func (b LayerRefBody) layerRef() domain.LayerRef {
	ref := domain.LayerRef{
		Package:   b.Package,
		Layer:     b.Layer,
		Selection: b.Selection,
		SRID:      b.SRID,
	}
	if raw := strings.TrimSpace(string(b.GeoJSON)); raw != "" && raw != "null" {
		ref.GeoJSON = b.GeoJSON
	}
	return ref
}

type queryCounts struct {
	Target           int64 `json:"target"`
	Reference        int64 `json:"reference"`
	Matched          int   `json:"matched"`
	InvalidTarget    int   `json:"invalid_target"`
	InvalidReference int   `json:"invalid_reference"`
}

type queryResponse struct {
	Relation         domain.Relation     `json:"relation"`
	Matched          []domain.FeatureID  `json:"matched"`
	InvalidTarget    []domain.FeatureID  `json:"invalid_target"`
	InvalidReference []domain.FeatureID  `json:"invalid_reference"`
	Diagnostics      []domain.Diagnostic `json:"diagnostics"`
	Counts           queryCounts         `json:"counts"`
	Digest           string              `json:"digest"`
	ProcessingTimeMS int64               `json:"processing_time_ms"`
}

func newQueryResponse(resp *domain.SpatialQueryResponse) queryResponse {
	out := queryResponse{
		Relation:         resp.Relation,
		Matched:          orEmpty(resp.Matched),
		InvalidTarget:    orEmpty(resp.InvalidTarget),
		InvalidReference: orEmpty(resp.InvalidReference),
		Diagnostics:      orEmpty(resp.Diagnostics),
		Digest:           resp.Digest,
		ProcessingTimeMS: resp.ProcessingTime.Milliseconds(),
	}
	out.Counts = queryCounts{
		Target:           resp.TargetCount,
		Reference:        resp.ReferenceCount,
		Matched:          len(out.Matched),
		InvalidTarget:    len(out.InvalidTarget),
		InvalidReference: len(out.InvalidReference),
	}
	return out
}

type relationsResponse struct {
	Relations []string `json:"relations"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var body QueryBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	resp, err := s.services.Query.Run(r.Context(), domain.SpatialQueryRequest{
		Relation:  body.Relation,
		Target:    body.Target.layerRef(),
		Reference: body.Reference.layerRef(),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newQueryResponse(resp))
}

// handleRelations lists the relations applicable to two geometry types
// (target_type, reference_type) or two layers (target, reference as
// package:layer). Without parameters every relation is listed.
func (s *Server) handleRelations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		set domain.RelationSet
		err error
	)
	switch {
	case q.Has("target_type") || q.Has("reference_type"):
		set, err = domain.ApplicableRelationsForTypes(
			domain.NormalizeGeometryType(q.Get("target_type")),
			domain.NormalizeGeometryType(q.Get("reference_type")),
		)
	case q.Has("target") || q.Has("reference"):
		set, err = s.layerPairRelations(r.Context(), q.Get("target"), q.Get("reference"))
	default:
		names := make([]string, len(domain.AllRelations))
		for i, rel := range domain.AllRelations {
			names[i] = rel.String()
		}
		s.writeJSON(w, http.StatusOK, relationsResponse{Relations: names})
		return
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, relationsResponse{Relations: set.Names()})
}

func (s *Server) layerPairRelations(ctx context.Context, target, reference string) (domain.RelationSet, error) {
	targetRef, err := parseLayerParam("target", target)
	if err != nil {
		return nil, err
	}
	referenceRef, err := parseLayerParam("reference", reference)
	if err != nil {
		return nil, err
	}
	return s.services.Query.ApplicableRelations(ctx, targetRef, referenceRef)
}

// parseLayerParam parses a package:layer query parameter.
func parseLayerParam(field, value string) (domain.LayerRef, error) {
	pkg, layer, ok := strings.Cut(value, ":")
	if !ok || pkg == "" || layer == "" {
		return domain.LayerRef{}, &domain.ValidationError{
			Field:      field,
			Value:      value,
			Constraint: "package:layer",
			Message:    fmt.Sprintf("%s must have the form package:layer", field),
		}
	}
	return domain.LayerRef{Package: pkg, Layer: layer}, nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// retryAfterSeconds rounds a wait up to whole seconds, at least one.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	return max(secs, 1)
}
