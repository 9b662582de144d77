package geopackage

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/jobrunner/spatialquery/internal/adapters/geometry"
	"github.com/jobrunner/spatialquery/internal/domain"
	"github.com/jobrunner/spatialquery/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixtureRow struct {
	fid int64
	wkt string // empty means NULL geometry
}

// writeFixture creates a minimal GeoPackage with one polygon layer.
func writeFixture(t *testing.T, rows []fixtureRow) string {
	t.Helper()
	registerDrivers()

	path := filepath.Join(t.TempDir(), "parcels.gpkg")
	db, err := sql.Open(driverGeoPackage, path)
	if err != nil {
		t.Fatalf("opening fixture: %v", err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE gpkg_contents (
			table_name TEXT PRIMARY KEY, data_type TEXT NOT NULL, identifier TEXT,
			description TEXT DEFAULT '', min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE, srs_id INTEGER)`,
		`CREATE TABLE gpkg_geometry_columns (
			table_name TEXT NOT NULL, column_name TEXT NOT NULL, geometry_type_name TEXT NOT NULL,
			srs_id INTEGER NOT NULL, z TINYINT NOT NULL, m TINYINT NOT NULL)`,
		`CREATE TABLE parcels (fid INTEGER PRIMARY KEY AUTOINCREMENT, geom BLOB, name TEXT)`,
		`INSERT INTO gpkg_contents VALUES ('parcels', 'features', 'parcels', 'Land parcels', 0, 0, 10, 10, 25832)`,
		`INSERT INTO gpkg_contents VALUES ('tiles', 'tiles', 'tiles', '', NULL, NULL, NULL, NULL, 3857)`,
		`INSERT INTO gpkg_geometry_columns VALUES ('parcels', 'geom', 'MULTIPOLYGON', 25832, 0, 0)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("fixture statement failed: %v\n%s", err, s)
		}
	}

	for _, row := range rows {
		var blob []byte
		if row.wkt != "" {
			shape := geometry.MustWKT(row.wkt)
			env := shape.BoundingBox()
			blob = EncodeBlob(25832, shape.WKB(), &env, shape.IsEmpty())
		}
		if _, err := db.Exec(`INSERT INTO parcels (fid, geom, name) VALUES (?, ?, ?)`, row.fid, blob, "p"); err != nil {
			t.Fatalf("inserting feature %d: %v", row.fid, err)
		}
	}

	return path
}

func collectIDs(t *testing.T, l output.FeatureLayer, selectedOnly bool) (valid, invalid []domain.FeatureID) {
	t.Helper()
	r, err := l.Features(context.Background(), selectedOnly)
	if err != nil {
		t.Fatalf("Features() error = %v", err)
	}
	defer r.Close()
	for r.Next() {
		f := r.Feature()
		if f.HasValidGeometry() {
			valid = append(valid, f.ID)
		} else {
			invalid = append(invalid, f.ID)
		}
	}
	if err := r.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	return valid, invalid
}

func TestRepositoryOpenAndReadLayer(t *testing.T) {
	path := writeFixture(t, []fixtureRow{
		{fid: 3, wkt: "POLYGON((0 0,4 0,4 4,0 4,0 0))"},
		{fid: 1, wkt: "MULTIPOLYGON(((5 5,9 5,9 9,5 9,5 5)))"},
		{fid: 2},
		{fid: 4, wkt: "POLYGON EMPTY"},
	})

	repo, err := NewRepository(2, testLogger())
	if err != nil {
		t.Fatalf("NewRepository() error = %v", err)
	}
	ctx := context.Background()

	pkg, err := repo.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if pkg.ID != "parcels" || !pkg.IsReady() || pkg.Size == 0 {
		t.Errorf("package = %+v", pkg)
	}
	if len(pkg.Layers) != 1 {
		t.Fatalf("layers = %d, want 1 (tiles are skipped)", len(pkg.Layers))
	}
	layer := pkg.Layers[0]
	if layer.GeometryType != domain.GeomMultiPolygon || layer.SRID != 25832 || layer.FeatureCount != 4 {
		t.Errorf("layer = %+v", layer)
	}
	if layer.Extent == nil || layer.Extent.MaxX != 10 {
		t.Errorf("extent = %v", layer.Extent)
	}

	fl, err := repo.Layer(ctx, "parcels", "parcels", []domain.FeatureID{1, 2})
	if err != nil {
		t.Fatalf("Layer() error = %v", err)
	}
	if fl.SRID() != 25832 || fl.FeatureCount(false) != 4 || fl.FeatureCount(true) != 2 {
		t.Errorf("layer counts = %d/%d", fl.FeatureCount(false), fl.FeatureCount(true))
	}

	valid, invalid := collectIDs(t, fl, false)
	if len(valid) != 2 || valid[0] != 1 || valid[1] != 3 {
		t.Errorf("valid = %v, want [1 3]", valid)
	}
	if len(invalid) != 2 || invalid[0] != 2 || invalid[1] != 4 {
		t.Errorf("invalid = %v, want [2 4]", invalid)
	}

	// Served from the cache with a different selection.
	again, err := repo.Layer(ctx, "parcels", "parcels", nil)
	if err != nil {
		t.Fatalf("Layer() error = %v", err)
	}
	if again.FeatureCount(true) != 0 {
		t.Errorf("selection leaked between calls: %d", again.FeatureCount(true))
	}

	if err := repo.Close(ctx, "parcels"); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if repo.layers.Len() != 0 {
		t.Errorf("cache not cleared, %d entries", repo.layers.Len())
	}
}

func TestRepositoryNotFound(t *testing.T) {
	path := writeFixture(t, nil)
	repo, err := NewRepository(0, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := repo.Layer(ctx, "missing", "parcels", nil); !errors.Is(err, domain.ErrPackageNotFound) {
		t.Errorf("Layer(missing package) error = %v", err)
	}

	if _, err := repo.Open(ctx, path); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Layer(ctx, "parcels", "roads", nil); !errors.Is(err, domain.ErrLayerNotFound) {
		t.Errorf("Layer(missing layer) error = %v", err)
	}
	if err := repo.Close(ctx, "unknown"); err != nil {
		t.Errorf("Close(unknown) error = %v", err)
	}
}

func TestRepositoryOpenInvalidFile(t *testing.T) {
	repo, err := NewRepository(0, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	_, err = repo.Open(context.Background(), filepath.Join(t.TempDir(), "absent.gpkg"))
	var storageErr *domain.StorageError
	if !errors.As(err, &storageErr) {
		t.Errorf("Open(absent) error = %v, want StorageError", err)
	}
}

func TestTransformerIdentity(t *testing.T) {
	tr := NewTransformer(testLogger())
	defer tr.Close()

	tests := []struct {
		from, to int
	}{
		{4326, 4326},
		{0, 25832},
		{25832, 0},
	}
	for _, tt := range tests {
		p, err := tr.NewReprojector(context.Background(), tt.from, tt.to)
		if err != nil {
			t.Fatalf("NewReprojector(%d, %d) error = %v", tt.from, tt.to, err)
		}
		if _, ok := p.(geometry.Identity); !ok {
			t.Errorf("NewReprojector(%d, %d) = %T, want identity", tt.from, tt.to, p)
		}
	}
}

func TestIdent(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"parcels", `"parcels"`},
		{`odd"name`, `"odd""name"`},
		{"with space", `"with space"`},
	}
	for _, tt := range tests {
		if got := ident(tt.in); got != tt.want {
			t.Errorf("ident(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestPrimaryKey(t *testing.T) {
	db, err := sql.Open(driverGeoPackage, writeFixture(t, nil))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.Exec(`CREATE TABLE keyless (geom BLOB)`); err != nil {
		t.Fatal(err)
	}

	for table, want := range map[string]string{"parcels": "fid", "keyless": "rowid"} {
		got, err := primaryKey(context.Background(), db, table)
		if err != nil || got != want {
			t.Errorf("primaryKey(%s) = %q, %v, want %q", table, got, err, want)
		}
	}
}

func TestDerivePackageID(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"simple filename", "/data/test.gpkg", "test"},
		{"nested path", "/var/data/geopackages/germany.gpkg", "germany"},
		{"relative path", "data/test.gpkg", "test"},
		{"different extension", "/data/test.sqlite", "test"},
		{"no extension", "/data/testfile", "testfile"},
		{"multiple dots", "/data/test.backup.gpkg", "test.backup"},
		{"with spaces", "/data/my package.gpkg", "my package"},
		{"just extension", ".gpkg", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DerivePackageID(tt.path); got != tt.want {
				t.Errorf("DerivePackageID(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
