package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jobrunner/spatialquery/internal/domain"
	"github.com/jobrunner/spatialquery/internal/ports/output"
)

// Progress phases of a relation query.
const (
	PhaseIndexReference = 1
	PhaseMatchTargets   = 2
)

// predicate is the prepared-geometry method answering a relation and the
// name of the relation it actually evaluates.
type predicate struct {
	name domain.Relation
	eval func(output.PreparedGeometry, domain.Geometry) (bool, error)
}

// predicates maps every relation to its predicate. Disjoint is answered by
// negating Intersects over all candidates.
var predicates = map[domain.Relation]predicate{
	domain.Intersects: {domain.Intersects, output.PreparedGeometry.Intersects},
	domain.Disjoint:   {domain.Intersects, output.PreparedGeometry.Intersects},
	domain.Touches:    {domain.Touches, output.PreparedGeometry.Touches},
	domain.Crosses:    {domain.Crosses, output.PreparedGeometry.Crosses},
	domain.Within:     {domain.Within, output.PreparedGeometry.Within},
	domain.Equals:     {domain.Equals, output.PreparedGeometry.Equals},
	domain.Overlaps:   {domain.Overlaps, output.PreparedGeometry.Overlaps},
	domain.Contains:   {domain.Contains, output.PreparedGeometry.Contains},
}

// SpatialQuery selects the target features that satisfy a relation against
// at least one reference feature (or, for disjoint, against none).
type SpatialQuery struct {
	engine       output.PredicateEngine
	indexes      output.SpatialIndexFactory
	reprojectors output.ReprojectorFactory
	progress     output.ProgressSink
	logger       *slog.Logger
}

// NewSpatialQuery creates a relation query runner reporting no progress.
func NewSpatialQuery(
	engine output.PredicateEngine,
	indexes output.SpatialIndexFactory,
	reprojectors output.ReprojectorFactory,
	logger *slog.Logger,
) *SpatialQuery {
	return &SpatialQuery{
		engine:       engine,
		indexes:      indexes,
		reprojectors: reprojectors,
		progress:     output.NoOpProgress{},
		logger:       logger,
	}
}

// WithProgress returns a copy of q reporting to sink.
func (q *SpatialQuery) WithProgress(sink output.ProgressSink) *SpatialQuery {
	c := *q
	if sink == nil {
		sink = output.NoOpProgress{}
	}
	c.progress = sink
	return &c
}

// referenceSnapshot is the read-only state built in phase 1.
type referenceSnapshot struct {
	index      output.SpatialIndex
	geometries map[domain.FeatureID]domain.Geometry
}

// Run evaluates relation between target and reference. Only the selected
// subset of a layer is read when its selectedOnly flag is set.
func (q *SpatialQuery) Run(
	ctx context.Context,
	target, reference output.FeatureLayer,
	relation domain.Relation,
	targetSelectedOnly, referenceSelectedOnly bool,
) (*domain.RelationResult, error) {
	pred, ok := predicates[relation]
	if !ok {
		return nil, &domain.ConfigError{
			Field:   "relation",
			Message: fmt.Sprintf("unknown relation %s", relation),
			Err:     domain.ErrUnknownRelation,
		}
	}

	reproj, err := q.reprojectors.NewReprojector(ctx, target.SRID(), reference.SRID())
	if err != nil {
		return nil, fmt.Errorf("preparing reprojection from %s to %s: %w", target.Name(), reference.Name(), err)
	}

	result := domain.NewRelationResult()

	snapshot, err := q.indexReference(ctx, reference, referenceSelectedOnly, result)
	if err != nil {
		return nil, err
	}

	q.logger.Debug("reference indexed",
		"layer", reference.Name(),
		"indexed", snapshot.index.Len(),
		"invalid", result.InvalidReference.Len(),
	)

	m := matcher{
		pred:     pred,
		negate:   relation == domain.Disjoint,
		engine:   q.engine,
		reproj:   reproj,
		snapshot: snapshot,
		result:   result,
		fromSRID: target.SRID(),
		toSRID:   reference.SRID(),
	}

	err = q.scan(ctx, target, targetSelectedOnly, PhaseMatchTargets, func(f domain.Feature) {
		m.match(ctx, f)
	})
	if err != nil {
		return nil, err
	}

	q.logger.Debug("targets matched",
		"layer", target.Name(),
		"relation", relation.String(),
		"matched", result.Matched.Len(),
		"invalid", result.InvalidTarget.Len(),
		"diagnostics", len(result.Diagnostics),
	)

	return result, nil
}

// indexReference runs phase 1.
func (q *SpatialQuery) indexReference(ctx context.Context, reference output.FeatureLayer, selectedOnly bool, result *domain.RelationResult) (*referenceSnapshot, error) {
	snapshot := &referenceSnapshot{
		index:      q.indexes.NewIndex(),
		geometries: make(map[domain.FeatureID]domain.Geometry),
	}

	err := q.scan(ctx, reference, selectedOnly, PhaseIndexReference, func(f domain.Feature) {
		if !f.HasValidGeometry() {
			result.InvalidReference.Add(f.ID)
			return
		}
		if err := snapshot.index.Insert(f.ID, f.Geometry); err != nil {
			q.logger.Warn("reference feature not indexed", "layer", reference.Name(), "fid", f.ID, "error", err)
			result.InvalidReference.Add(f.ID)
			return
		}
		snapshot.geometries[f.ID] = f.Geometry
	})
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

// scan visits every feature of a layer, reporting one progress step per
// feature. The reader is closed on every path.
func (q *SpatialQuery) scan(ctx context.Context, layer output.FeatureLayer, selectedOnly bool, phase int, visit func(domain.Feature)) (err error) {
	q.progress.InitPhase(phase, int(layer.FeatureCount(selectedOnly)))

	reader, err := layer.Features(ctx, selectedOnly)
	if err != nil {
		return fmt.Errorf("reading layer %s: %w", layer.Name(), err)
	}
	defer func() {
		if cerr := reader.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing layer %s: %w", layer.Name(), cerr)
		}
	}()

	step := 0
	for reader.Next() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("phase %d on layer %s: %w", phase, layer.Name(), err)
		}
		step++
		q.progress.Step(step)
		visit(reader.Feature())
	}

	if err := reader.Err(); err != nil {
		return fmt.Errorf("reading layer %s: %w", layer.Name(), err)
	}
	return nil
}

// matcher holds the per-run state of phase 2.
type matcher struct {
	pred     predicate
	negate   bool
	engine   output.PredicateEngine
	reproj   output.Reprojector
	snapshot *referenceSnapshot
	result   *domain.RelationResult
	fromSRID int
	toSRID   int
}

// match decides a single target feature. For ordinary relations one true
// candidate is enough. With negate set the target matches only if every
// candidate was evaluated and none satisfied the predicate. A failing pair
// never ends the scan; only a true predicate does.
func (m *matcher) match(ctx context.Context, f domain.Feature) {
	if !f.HasValidGeometry() {
		m.result.InvalidTarget.Add(f.ID)
		return
	}

	g, err := m.reproj.Transform(ctx, f.Geometry)
	if err == nil && (g == nil || g.IsEmpty()) {
		err = fmt.Errorf("%w: empty result", domain.ErrInvalidGeometry)
	}
	if err != nil {
		rerr := &domain.ReprojectionError{
			FeatureID: f.ID,
			FromSRID:  m.fromSRID,
			ToSRID:    m.toSRID,
			Err:       err,
		}
		m.result.InvalidTarget.Add(f.ID)
		m.result.Diagnostics = append(m.result.Diagnostics, domain.Diagnostic{
			Kind:     domain.DiagnosticReprojectionFailure,
			TargetID: f.ID,
			Message:  rerr.Error(),
		})
		return
	}

	candidates := m.snapshot.index.Query(g.BoundingBox())
	if len(candidates) == 0 {
		if m.negate {
			m.result.Matched.Add(f.ID)
		}
		return
	}

	prepared, err := m.engine.Prepare(g)
	if err != nil {
		m.result.Diagnostics = append(m.result.Diagnostics, domain.Diagnostic{
			Kind:     domain.DiagnosticPrepareFailure,
			TargetID: f.ID,
			Message:  fmt.Sprintf("prepare target %d: %v", f.ID, err),
		})
		return
	}

	hit, failed := false, false
	for _, id := range candidates {
		ok, err := m.pred.eval(prepared, m.snapshot.geometries[id])
		if err != nil {
			m.fail(f.ID, id, err)
			failed = true
			continue
		}
		if ok {
			hit = true
			break
		}
	}

	matched := hit
	if m.negate {
		matched = !hit && !failed
	}
	if matched {
		m.result.Matched.Add(f.ID)
	}
}

func (m *matcher) fail(targetID, referenceID domain.FeatureID, err error) {
	perr := &domain.PredicateError{
		Relation:    m.pred.name,
		TargetID:    targetID,
		ReferenceID: referenceID,
		Err:         err,
	}
	m.result.Diagnostics = append(m.result.Diagnostics, domain.Diagnostic{
		Kind:        domain.DiagnosticPredicateFailure,
		TargetID:    targetID,
		ReferenceID: referenceID,
		Message:     perr.Error(),
	})
}
