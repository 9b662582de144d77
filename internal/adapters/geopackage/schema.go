package geopackage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jobrunner/spatialquery/internal/adapters/geometry"
	"github.com/jobrunner/spatialquery/internal/domain"
)

// featureLayersQuery lists the feature tables registered in gpkg_contents
// with their geometry column. Tile and attribute tables are skipped.
const featureLayersQuery = `
	SELECT c.table_name, COALESCE(c.description, ''), g.column_name,
	       g.geometry_type_name, g.srs_id, c.min_x, c.min_y, c.max_x, c.max_y
	FROM gpkg_contents c
	JOIN gpkg_geometry_columns g ON g.table_name = c.table_name
	WHERE c.data_type = 'features'
	ORDER BY c.table_name`

// ident quotes an SQL identifier.
func ident(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func readLayers(ctx context.Context, db *sql.DB) ([]domain.Layer, error) {
	rows, err := db.QueryContext(ctx, featureLayersQuery)
	if err != nil {
		return nil, fmt.Errorf("listing feature tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var layers []domain.Layer
	for rows.Next() {
		var (
			l        domain.Layer
			geomType string
			bounds   [4]sql.NullFloat64
		)
		if err := rows.Scan(&l.Name, &l.Description, &l.GeometryColumn, &geomType, &l.SRID,
			&bounds[0], &bounds[1], &bounds[2], &bounds[3]); err != nil {
			return nil, fmt.Errorf("scanning gpkg_contents: %w", err)
		}
		l.GeometryType = domain.NormalizeGeometryType(geomType)
		if bounds[0].Valid && bounds[1].Valid && bounds[2].Valid && bounds[3].Valid {
			e := domain.NewExtent(bounds[0].Float64, bounds[1].Float64, bounds[2].Float64, bounds[3].Float64)
			l.Extent = &e
		}
		layers = append(layers, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range layers {
		// A failing count leaves FeatureCount at zero; reading the layer
		// reports the real problem.
		_ = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+ident(layers[i].Name)).Scan(&layers[i].FeatureCount) //#nosec G202 -- identifier read from gpkg_contents
	}
	return layers, nil
}

// primaryKey returns the integer primary key column of table, or rowid.
func primaryKey(ctx context.Context, db *sql.DB, table string) (string, error) {
	rows, err := db.QueryContext(ctx, "SELECT name, pk FROM pragma_table_info(?)", table)
	if err != nil {
		return "", fmt.Errorf("reading table info: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			name string
			pk   int
		)
		if err := rows.Scan(&name, &pk); err != nil {
			return "", fmt.Errorf("scanning table info: %w", err)
		}
		if pk == 1 {
			return name, rows.Err()
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return "rowid", nil
}

// readFeatures decodes every feature of a layer in primary key order. A NULL
// or undecodable blob yields a feature without geometry.
func readFeatures(ctx context.Context, db *sql.DB, layer *domain.Layer, logger *slog.Logger) ([]domain.Feature, error) {
	pk, err := primaryKey(ctx, db, layer.Name)
	if err != nil {
		return nil, err
	}

	pkCol := ident(pk)
	query := "SELECT " + pkCol + ", " + ident(layer.GeometryColumn) +
		" FROM " + ident(layer.Name) + " ORDER BY " + pkCol //#nosec G202 -- identifiers read from the package schema
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reading features: %w", err)
	}
	defer func() { _ = rows.Close() }()

	features := make([]domain.Feature, 0, layer.FeatureCount)
	for rows.Next() {
		var (
			id   int64
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning feature: %w", err)
		}

		f := domain.Feature{ID: domain.FeatureID(id), LayerName: layer.Name}
		if blob != nil {
			g, err := decodeGeometry(blob)
			if err != nil {
				logger.Warn("undecodable geometry", "layer", layer.Name, "fid", id, "error", err)
			} else {
				f.Geometry = g
			}
		}
		features = append(features, f)
	}
	return features, rows.Err()
}

// decodeGeometry turns a GeoPackage blob into a geometry. A blob flagged
// empty whose WKB cannot be parsed becomes an empty collection.
func decodeGeometry(blob []byte) (domain.Geometry, error) {
	header, wkb, err := DecodeBlob(blob)
	if err != nil {
		return nil, err
	}
	g, err := geometry.FromWKB(wkb)
	switch {
	case err == nil:
		return g, nil
	case header.Empty:
		return geometry.MustWKT("GEOMETRYCOLLECTION EMPTY"), nil
	default:
		return nil, err
	}
}
