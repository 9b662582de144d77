// Package output defines the driven ports: storage, GeoPackage access,
// geometry evaluation, metrics and progress.
package output

import (
	"context"

	"github.com/jobrunner/spatialquery/internal/domain"
)

// GeoPackageRepository opens GeoPackage files and serves their layers.
// Packages are addressed by the id Open derives from the file name.
type GeoPackageRepository interface {
	Open(ctx context.Context, path string) (*domain.GeoPackage, error)
	Close(ctx context.Context, packageID string) error

	// Layer returns a readable feature layer. A non-empty selection marks
	// the subset read when the layer is iterated with selectedOnly set.
	Layer(ctx context.Context, packageID, layer string, selection []domain.FeatureID) (FeatureLayer, error)
}

// ReprojectorFactory builds reprojectors between spatial reference systems.
type ReprojectorFactory interface {
	// NewReprojector returns a reprojector from fromSRID to toSRID. Equal
	// SRIDs yield an identity reprojector.
	NewReprojector(ctx context.Context, fromSRID, toSRID int) (Reprojector, error)
}

// Reprojector maps geometries from one spatial reference system to another.
type Reprojector interface {
	Transform(ctx context.Context, g domain.Geometry) (domain.Geometry, error)
}
