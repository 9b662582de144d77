package geopackage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jobrunner/spatialquery/internal/adapters/geometry"
	"github.com/jobrunner/spatialquery/internal/domain"
	"github.com/jobrunner/spatialquery/internal/ports/output"
)

// Transformer implements the ReprojectorFactory port with SpatiaLite's
// Transform() in an in-memory database. GeoPackages are opened read-only
// and carry no spatial_ref_sys table, hence the separate database.
type Transformer struct {
	logger *slog.Logger

	once    sync.Once
	db      *sql.DB
	openErr error
}

// NewTransformer creates a transformer. SpatiaLite is loaded on the first
// reprojection between different SRIDs.
func NewTransformer(logger *slog.Logger) *Transformer {
	registerDrivers()
	return &Transformer{logger: logger}
}

func (t *Transformer) open(ctx context.Context) (*sql.DB, error) {
	t.once.Do(func() {
		db, err := sql.Open(driverSpatiaLite, ":memory:")
		if err != nil {
			t.openErr = err
			return
		}
		// Every connection to :memory: is its own database.
		db.SetMaxOpenConns(1)

		// InitSpatialMetaDataFull populates spatial_ref_sys with the EPSG definitions.
		if _, err := db.ExecContext(ctx, "SELECT InitSpatialMetaDataFull(1)"); err != nil {
			_ = db.Close()
			t.openErr = fmt.Errorf("initializing spatial metadata: %w", err)
			return
		}
		t.db = db
		t.logger.Info("SpatiaLite reprojection initialized")
	})
	return t.db, t.openErr
}

// NewReprojector implements output.ReprojectorFactory. Equal SRIDs and
// undefined SRIDs (0) yield the identity.
func (t *Transformer) NewReprojector(ctx context.Context, fromSRID, toSRID int) (output.Reprojector, error) {
	if fromSRID == toSRID || fromSRID == domain.SRIDUndefined || toSRID == domain.SRIDUndefined {
		return geometry.Identity{}, nil
	}

	db, err := t.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %d to %d: %v", domain.ErrUnsupportedProjection, fromSRID, toSRID, err)
	}

	var count int
	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM spatial_ref_sys WHERE srid IN (?, ?)",
		fromSRID, toSRID,
	).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("%w: %d to %d: %v", domain.ErrUnsupportedProjection, fromSRID, toSRID, err)
	}
	if count != 2 {
		return nil, fmt.Errorf("%w: %d to %d: unknown SRID", domain.ErrUnsupportedProjection, fromSRID, toSRID)
	}

	return &spatialiteReprojector{db: db, from: fromSRID, to: toSRID}, nil
}

// Check loads SpatiaLite if needed and reports whether reprojection works.
func (t *Transformer) Check(ctx context.Context) error {
	_, err := t.open(ctx)
	return err
}

// Close closes the transformer's database connection.
func (t *Transformer) Close() error {
	if t.db != nil {
		return t.db.Close()
	}
	return nil
}

type spatialiteReprojector struct {
	db       *sql.DB
	from, to int
}

// Transform implements output.Reprojector.
func (p *spatialiteReprojector) Transform(ctx context.Context, g domain.Geometry) (domain.Geometry, error) {
	s, err := geometry.AsShape(g)
	if err != nil {
		return nil, err
	}

	var wkb []byte
	err = p.db.QueryRowContext(ctx,
		"SELECT AsBinary(Transform(GeomFromWKB(?, ?), ?))",
		s.WKB(), p.from, p.to,
	).Scan(&wkb)
	if err != nil {
		return nil, fmt.Errorf("transforming geometry: %w", err)
	}
	if wkb == nil {
		return nil, fmt.Errorf("transforming geometry from %d to %d: no result", p.from, p.to)
	}

	return geometry.FromWKB(wkb)
}
