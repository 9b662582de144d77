package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jobrunner/spatialquery/internal/domain"
	"github.com/jobrunner/spatialquery/internal/ports/output"
)

// ProgressFactory creates the progress sink for one query run.
type ProgressFactory func(relation domain.Relation, target, reference string) output.ProgressSink

// QueryService resolves layer references and runs relation queries.
type QueryService struct {
	registry *PackageRegistry
	decoder  output.LayerDecoder
	query    *SpatialQuery
	metrics  output.MetricsCollector
	logger   *slog.Logger
	timeout  time.Duration
	strict   bool
	progress ProgressFactory
}

// QueryServiceConfig holds configuration for the query service.
type QueryServiceConfig struct {
	Timeout         time.Duration   // Upper bound for a single run, 0 disables it
	StrictRelations bool            // Reject relations not applicable to the layer pair
	Progress        ProgressFactory // Optional per-run progress reporting
}

// NewQueryService creates a new query service.
func NewQueryService(
	registry *PackageRegistry,
	decoder output.LayerDecoder,
	query *SpatialQuery,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	cfg QueryServiceConfig,
) *QueryService {
	progress := cfg.Progress
	if progress == nil {
		progress = func(domain.Relation, string, string) output.ProgressSink {
			return output.NoOpProgress{}
		}
	}

	return &QueryService{
		registry: registry,
		decoder:  decoder,
		query:    query,
		metrics:  metrics,
		logger:   logger,
		timeout:  cfg.Timeout,
		strict:   cfg.StrictRelations,
		progress: progress,
	}
}

// Run evaluates the requested relation between the target and reference
// layers. Id lists in the response are sorted ascending.
func (s *QueryService) Run(ctx context.Context, req domain.SpatialQueryRequest) (*domain.SpatialQueryResponse, error) {
	start := time.Now()

	relation, err := domain.ParseRelation(req.Relation)
	if err != nil {
		return nil, err
	}

	target, err := s.resolve(ctx, req.Target, "target")
	if err != nil {
		return nil, err
	}
	reference, err := s.resolve(ctx, req.Reference, "reference")
	if err != nil {
		return nil, err
	}

	if s.strict {
		if err := checkApplicable(relation, target.GeometryType(), reference.GeometryType()); err != nil {
			return nil, err
		}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	sink := s.progress(relation, target.Name(), reference.Name())
	result, err := s.query.WithProgress(sink).Run(ctx, target, reference, relation,
		req.Target.SelectedOnly(), req.Reference.SelectedOnly())
	if f, ok := sink.(output.ProgressFinisher); ok {
		f.Finish()
	}

	duration := time.Since(start)
	s.metrics.ObserveQueryDuration(relation.String(), duration)
	if err != nil {
		s.metrics.IncQueryCount(relation.String(), false)
		s.logger.Warn("relation query failed",
			"relation", relation.String(),
			"target", target.Name(),
			"reference", reference.Name(),
			"error", err,
		)
		return nil, err
	}
	s.metrics.IncQueryCount(relation.String(), true)
	s.recordResultMetrics(result)

	response := &domain.SpatialQueryResponse{
		Relation:         relation,
		Matched:          result.Matched.Sorted(),
		InvalidTarget:    result.InvalidTarget.Sorted(),
		InvalidReference: result.InvalidReference.Sorted(),
		Diagnostics:      result.Diagnostics,
		TargetCount:      target.FeatureCount(req.Target.SelectedOnly()),
		ReferenceCount:   reference.FeatureCount(req.Reference.SelectedOnly()),
		Digest:           ResultDigest(relation, result),
		ProcessingTime:   duration,
	}

	s.logger.Info("relation query completed",
		"relation", relation.String(),
		"target", target.Name(),
		"reference", reference.Name(),
		"matched", len(response.Matched),
		"invalid_target", len(response.InvalidTarget),
		"invalid_reference", len(response.InvalidReference),
		"diagnostics", len(response.Diagnostics),
		"duration", duration,
	)

	return response, nil
}

// ApplicableRelations returns the relations meaningful for two layers.
func (s *QueryService) ApplicableRelations(ctx context.Context, target, reference domain.LayerRef) (domain.RelationSet, error) {
	targetType, err := s.layerType(ctx, target, "target")
	if err != nil {
		return nil, err
	}
	referenceType, err := s.layerType(ctx, reference, "reference")
	if err != nil {
		return nil, err
	}
	return domain.ApplicableRelationsForTypes(targetType, referenceType)
}

// resolve turns a layer reference into a readable layer.
func (s *QueryService) resolve(ctx context.Context, ref domain.LayerRef, field string) (output.FeatureLayer, error) {
	if err := ref.Validate(field); err != nil {
		return nil, err
	}

	if ref.IsInline() {
		layer, err := s.decoder.DecodeGeoJSON(field, ref.GeoJSON, ref.SRID, ref.Selection)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", field, err)
		}
		return layer, nil
	}

	return s.registry.Layer(ctx, ref.Package, ref.Layer, ref.Selection)
}

// layerType returns the geometry type of a referenced layer without
// decoding package layers.
func (s *QueryService) layerType(ctx context.Context, ref domain.LayerRef, field string) (domain.GeometryType, error) {
	if err := ref.Validate(field); err != nil {
		return "", err
	}

	if ref.IsInline() {
		layer, err := s.resolve(ctx, ref, field)
		if err != nil {
			return "", err
		}
		return layer.GeometryType(), nil
	}

	pkg, err := s.registry.GetPackage(ctx, ref.Package)
	if err != nil {
		return "", err
	}
	layer, ok := pkg.GetLayer(ref.Layer)
	if !ok {
		return "", &domain.QueryError{PackageID: ref.Package, Layer: ref.Layer, Err: domain.ErrLayerNotFound}
	}
	return layer.GeometryType, nil
}

func (s *QueryService) recordResultMetrics(result *domain.RelationResult) {
	s.metrics.AddInvalidFeatures("target", result.InvalidTarget.Len())
	s.metrics.AddInvalidFeatures("reference", result.InvalidReference.Len())

	failures := 0
	for _, d := range result.Diagnostics {
		if d.Kind == domain.DiagnosticPredicateFailure || d.Kind == domain.DiagnosticPrepareFailure {
			failures++
		}
	}
	s.metrics.AddPredicateFailures(failures)
}

// checkApplicable rejects relations outside the applicability table for the
// two geometry types.
func checkApplicable(relation domain.Relation, target, reference domain.GeometryType) error {
	set, err := domain.ApplicableRelationsForTypes(target, reference)
	if err != nil {
		return err
	}
	if !set.Has(relation) {
		return fmt.Errorf("%s between %s and %s: %w", relation, target, reference, domain.ErrRelationNotApplicable)
	}
	return nil
}
