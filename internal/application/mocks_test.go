package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jobrunner/spatialquery/internal/adapters/geometry"
	"github.com/jobrunner/spatialquery/internal/domain"
	"github.com/jobrunner/spatialquery/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockRepository implements output.GeoPackageRepository for testing.
type mockRepository struct {
	packages map[string]*domain.GeoPackage
	layers   map[string]output.FeatureLayer // keyed by "package:layer"
	openErr  error
}

func (m *mockRepository) Open(_ context.Context, path string) (*domain.GeoPackage, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	if m.packages != nil {
		if pkg, ok := m.packages[path]; ok {
			return pkg, nil
		}
	}
	id := derivePackageID(path)
	return &domain.GeoPackage{
		ID:       id,
		Name:     id,
		Path:     path,
		Layers:   []domain.Layer{{Name: "features", GeometryType: domain.GeomPolygon}},
		LoadedAt: time.Now(),
	}, nil
}

func (m *mockRepository) Close(_ context.Context, _ string) error {
	return nil
}

func (m *mockRepository) Layer(_ context.Context, packageID, layerName string, selection []domain.FeatureID) (output.FeatureLayer, error) {
	l, ok := m.layers[packageID+":"+layerName]
	if !ok {
		return nil, &domain.QueryError{PackageID: packageID, Layer: layerName, Err: domain.ErrLayerNotFound}
	}
	if ml, ok := l.(*geometry.MemoryLayer); ok {
		return ml.WithSelection(selection), nil
	}
	return l, nil
}

// mockStorage implements output.ObjectStorage for testing.
type mockStorage struct {
	objects     []output.StorageObject
	downloadErr error
	listErr     error
}

func (m *mockStorage) List(_ context.Context) ([]output.StorageObject, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.objects, nil
}

func (m *mockStorage) Download(_ context.Context, _, _ string) error {
	return m.downloadErr
}

func (m *mockStorage) GetReader(_ context.Context, _ string) (io.ReadCloser, error) {
	return nil, nil
}

func (m *mockStorage) Exists(_ context.Context, _ string) (bool, error) {
	return true, nil
}

// mockMetrics records the metrics the services report.
type mockMetrics struct {
	output.NoOpMetrics
	mu                sync.Mutex
	queries           map[string]int // "relation/success"
	invalid           map[string]int
	predicateFailures int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{queries: map[string]int{}, invalid: map[string]int{}}
}

func (m *mockMetrics) IncQueryCount(relation string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := relation + "/error"
	if success {
		key = relation + "/success"
	}
	m.queries[key]++
}

func (m *mockMetrics) AddInvalidFeatures(role string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalid[role] += count
}

func (m *mockMetrics) AddPredicateFailures(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predicateFailures += count
}

// recordingProgress records every progress call.
type recordingProgress struct {
	phases []phaseRecord
}

type phaseRecord struct {
	phase, total int
	steps        []int
}

func (p *recordingProgress) InitPhase(phase, total int) {
	p.phases = append(p.phases, phaseRecord{phase: phase, total: total})
}

func (p *recordingProgress) Step(step int) {
	last := &p.phases[len(p.phases)-1]
	last.steps = append(last.steps, step)
}

// failingEngine wraps the real engine and fails evaluation for chosen
// reference geometries, or every Prepare when prepareErr is set.
type failingEngine struct {
	engine     *geometry.Engine
	failOn     map[domain.Geometry]bool
	prepareErr error
}

func (e *failingEngine) Prepare(g domain.Geometry) (output.PreparedGeometry, error) {
	if e.prepareErr != nil {
		return nil, e.prepareErr
	}
	p, err := e.engine.Prepare(g)
	if err != nil {
		return nil, err
	}
	return &failingPrepared{PreparedGeometry: p, failOn: e.failOn}, nil
}

type failingPrepared struct {
	output.PreparedGeometry
	failOn map[domain.Geometry]bool
}

var errEngine = errors.New("topology exception")

func (p *failingPrepared) check(other domain.Geometry) error {
	if p.failOn[other] {
		return errEngine
	}
	return nil
}

func (p *failingPrepared) Intersects(other domain.Geometry) (bool, error) {
	if err := p.check(other); err != nil {
		return false, err
	}
	return p.PreparedGeometry.Intersects(other)
}

func (p *failingPrepared) Within(other domain.Geometry) (bool, error) {
	if err := p.check(other); err != nil {
		return false, err
	}
	return p.PreparedGeometry.Within(other)
}

// mockReprojectors returns identity reprojectors, optionally failing for
// chosen target geometries or at construction.
type mockReprojectors struct {
	newErr error
	failOn map[domain.Geometry]bool
	calls  []int // fromSRID, toSRID of the last call
}

func (m *mockReprojectors) NewReprojector(_ context.Context, from, to int) (output.Reprojector, error) {
	m.calls = []int{from, to}
	if m.newErr != nil {
		return nil, m.newErr
	}
	return &mockReprojector{failOn: m.failOn}, nil
}

type mockReprojector struct {
	failOn map[domain.Geometry]bool
}

func (m *mockReprojector) Transform(_ context.Context, g domain.Geometry) (domain.Geometry, error) {
	if m.failOn[g] {
		return nil, errors.New("coordinates out of range")
	}
	return g, nil
}

// trackingLayer wraps a layer, counting reader closes and optionally
// cancelling a context after a number of features.
type trackingLayer struct {
	output.FeatureLayer
	closes      int
	cancelAfter int
	cancel      context.CancelFunc
	readErr     error
}

func (l *trackingLayer) Features(ctx context.Context, selectedOnly bool) (output.FeatureReader, error) {
	r, err := l.FeatureLayer.Features(ctx, selectedOnly)
	if err != nil {
		return nil, err
	}
	return &trackingReader{FeatureReader: r, layer: l}, nil
}

type trackingReader struct {
	output.FeatureReader
	layer *trackingLayer
	seen  int
}

func (r *trackingReader) Next() bool {
	if !r.FeatureReader.Next() {
		return false
	}
	r.seen++
	if r.layer.cancel != nil && r.seen == r.layer.cancelAfter {
		r.layer.cancel()
	}
	return true
}

func (r *trackingReader) Err() error {
	if r.layer.readErr != nil {
		return r.layer.readErr
	}
	return r.FeatureReader.Err()
}

func (r *trackingReader) Close() error {
	r.layer.closes++
	return r.FeatureReader.Close()
}
