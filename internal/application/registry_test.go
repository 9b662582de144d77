package application

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/jobrunner/spatialquery/internal/domain"
	"github.com/jobrunner/spatialquery/internal/ports/input"
	"github.com/jobrunner/spatialquery/internal/ports/output"
)

func newTestRegistry(repo *mockRepository) *PackageRegistry {
	if repo == nil {
		repo = &mockRepository{}
	}
	return NewPackageRegistry(repo, &mockStorage{}, &output.NoOpMetrics{}, testLogger(), "/tmp")
}

// seed registers entries directly, bypassing the repository.
func seed(r *PackageRegistry, statuses map[string]domain.GeoPackageStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, status := range statuses {
		r.packages[id] = &packageEntry{pkg: &domain.GeoPackage{ID: id}, status: status}
	}
}

func TestPackageRegistryLifecycle(t *testing.T) {
	repo := &mockRepository{
		packages: map[string]*domain.GeoPackage{
			"/data/parcels.gpkg": {
				ID:       "parcels",
				Path:     "/data/parcels.gpkg",
				Layers:   []domain.Layer{{Name: "parcels", GeometryType: domain.GeomMultiPolygon, SRID: 25832}},
				LoadedAt: time.Now(),
			},
		},
	}
	registry := newTestRegistry(repo)
	ctx := context.Background()

	if err := registry.LoadPackage(ctx, "/data/parcels.gpkg"); err != nil {
		t.Fatalf("LoadPackage() error = %v", err)
	}
	if err := registry.LoadPackage(ctx, "/data/addresses.gpkg"); err != nil {
		t.Fatalf("LoadPackage() error = %v", err)
	}

	packages, err := registry.ListPackages(ctx)
	if err != nil {
		t.Fatalf("ListPackages() error = %v", err)
	}
	var ids []string
	for _, pkg := range packages {
		ids = append(ids, pkg.ID)
	}
	if !slices.Equal(ids, []string{"addresses", "parcels"}) {
		t.Errorf("ListPackages() ids = %v, want [addresses parcels]", ids)
	}

	pkg, err := registry.GetPackage(ctx, "parcels")
	if err != nil || pkg.Layers[0].Name != "parcels" {
		t.Fatalf("GetPackage() = %v, %v", pkg, err)
	}
	if status, _ := registry.GetPackageStatus(ctx, "parcels"); status != domain.StatusReady {
		t.Errorf("status = %s, want %s", status, domain.StatusReady)
	}

	if err := registry.UnloadPackage(ctx, "parcels"); err != nil {
		t.Fatalf("UnloadPackage() error = %v", err)
	}
	if registry.IsLoaded("parcels") || registry.PackageCount() != 1 {
		t.Errorf("after unload: loaded = %v, count = %d", registry.IsLoaded("parcels"), registry.PackageCount())
	}
	if err := registry.UnloadPackage(ctx, "parcels"); err != nil {
		t.Errorf("second UnloadPackage() error = %v, want nil", err)
	}
}

func TestPackageRegistryOpenFailure(t *testing.T) {
	openErr := errors.New("file is not a database")
	registry := newTestRegistry(&mockRepository{openErr: openErr})

	if err := registry.LoadPackage(context.Background(), "/data/broken.gpkg"); !errors.Is(err, openErr) {
		t.Errorf("LoadPackage() error = %v, want %v", err, openErr)
	}
	if registry.PackageCount() != 0 {
		t.Error("a package that failed to open must not be registered")
	}
}

func TestPackageRegistryLookupErrors(t *testing.T) {
	registry := newTestRegistry(nil)
	ctx := context.Background()

	if _, err := registry.GetPackage(ctx, "missing"); !errors.Is(err, domain.ErrPackageNotFound) {
		t.Errorf("GetPackage() error = %v", err)
	}
	if _, err := registry.GetPackageStatus(ctx, "missing"); !errors.Is(err, domain.ErrPackageNotFound) {
		t.Errorf("GetPackageStatus() error = %v", err)
	}
}

func TestPackageRegistryReadiness(t *testing.T) {
	registry := newTestRegistry(nil)
	seed(registry, map[string]domain.GeoPackageStatus{
		"zones":     domain.StatusReady,
		"addresses": domain.StatusReady,
		"rivers":    domain.StatusLoading,
		"broken":    domain.StatusError,
	})

	tests := []struct {
		id   string
		want bool
	}{
		{"zones", true},
		{"rivers", false},
		{"broken", false},
		{"missing", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := registry.IsReady(tt.id); got != tt.want {
				t.Errorf("IsReady(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}

	if got := registry.ReadyPackageIDs(); !slices.Equal(got, []string{"addresses", "zones"}) {
		t.Errorf("ReadyPackageIDs() = %v, want [addresses zones]", got)
	}
	if total, ready := registry.Counts(); total != 4 || ready != 2 {
		t.Errorf("Counts() = %d, %d, want 4, 2", total, ready)
	}
}

func TestPackageRegistryStates(t *testing.T) {
	repo := &mockRepository{
		packages: map[string]*domain.GeoPackage{
			"/data/mixed.gpkg": {
				ID:     "mixed",
				Path:   "/data/mixed.gpkg",
				Layers: []domain.Layer{{Name: "things", GeometryType: domain.GeomGeometryCollection}},
			},
		},
	}
	registry := newTestRegistry(repo)
	ctx := context.Background()

	for _, path := range []string{"/data/mixed.gpkg", "/data/zones.gpkg"} {
		if err := registry.LoadPackage(ctx, path); err != nil {
			t.Fatalf("LoadPackage(%s) error = %v", path, err)
		}
	}

	states := registry.States()
	if len(states) != 2 {
		t.Fatalf("States() = %v", states)
	}
	if states[0].ID != "mixed" || states[0].Status != domain.StatusError || states[0].Error == "" {
		t.Errorf("states[0] = %+v, want mixed in error with a reason", states[0])
	}
	if want := (input.PackageState{ID: "zones", Status: domain.StatusReady}); states[1] != want {
		t.Errorf("states[1] = %+v, want %+v", states[1], want)
	}
}

func TestPackageRegistryLayer(t *testing.T) {
	repo := &mockRepository{
		packages: map[string]*domain.GeoPackage{
			"/data/mixed.gpkg": {
				ID:     "mixed",
				Path:   "/data/mixed.gpkg",
				Layers: []domain.Layer{{Name: "things", GeometryType: domain.GeomGeometryCollection}},
			},
		},
		layers: map[string]output.FeatureLayer{
			"zoning:zones": referencePolygons(),
		},
	}
	registry := newTestRegistry(repo)
	ctx := context.Background()

	if _, err := registry.Layer(ctx, "zoning", "zones", nil); !errors.Is(err, domain.ErrPackageNotFound) {
		t.Errorf("Layer() before load error = %v, want ErrPackageNotFound", err)
	}

	for _, path := range []string{"/data/zoning.gpkg", "/data/mixed.gpkg"} {
		if err := registry.LoadPackage(ctx, path); err != nil {
			t.Fatalf("LoadPackage(%s) error = %v", path, err)
		}
	}
	seed(registry, map[string]domain.GeoPackageStatus{"pending": domain.StatusLoading})

	tests := []struct {
		name    string
		pkg     string
		layer   string
		wantErr error
	}{
		{"ready layer", "zoning", "zones", nil},
		{"unknown layer", "zoning", "roads", domain.ErrLayerNotFound},
		{"package without queryable layer", "mixed", "things", domain.ErrUnsupportedGeometryType},
		{"loading package", "pending", "zones", domain.ErrNotReady},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layer, err := registry.Layer(ctx, tt.pkg, tt.layer, []domain.FeatureID{10})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Layer() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && layer.FeatureCount(true) != 1 {
				t.Errorf("FeatureCount(true) = %d, want 1", layer.FeatureCount(true))
			}
		})
	}

	if pkg, _ := registry.GetPackage(ctx, "zoning"); pkg.LastQueried.IsZero() {
		t.Error("LastQueried should be set by Layer")
	}
}

func TestDerivePackageID(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/data/zoning.gpkg", "zoning"},
		{"regions/north/zoning.gpkg", "zoning"},
		{"zoning.v2.gpkg", "zoning.v2"},
		{"zoning", "zoning"},
	}
	for _, tt := range tests {
		if got := derivePackageID(tt.path); got != tt.want {
			t.Errorf("derivePackageID(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
