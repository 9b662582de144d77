// Package input defines the driving ports used by the HTTP and CLI adapters.
package input

import (
	"context"

	"github.com/jobrunner/spatialquery/internal/domain"
)

// QueryService evaluates spatial relations between layers.
type QueryService interface {
	// Run evaluates req.Relation for every target feature against the
	// reference layer.
	Run(ctx context.Context, req domain.SpatialQueryRequest) (*domain.SpatialQueryResponse, error)

	// ApplicableRelations returns the relations meaningful for the geometry
	// types of two layers.
	ApplicableRelations(ctx context.Context, target, reference domain.LayerRef) (domain.RelationSet, error)
}

// PackageCatalog exposes the registered GeoPackages.
type PackageCatalog interface {
	ListPackages(ctx context.Context) ([]domain.GeoPackage, error)
	GetPackage(ctx context.Context, id string) (*domain.GeoPackage, error)
	GetPackageStatus(ctx context.Context, id string) (domain.GeoPackageStatus, error)
}

// HealthChecker answers liveness and readiness probes.
type HealthChecker interface {
	IsHealthy(ctx context.Context) bool
	IsReady(ctx context.Context) bool
	GetHealthDetails(ctx context.Context) HealthDetails
}

// SyncTrigger starts a storage sync on request.
type SyncTrigger interface {
	TriggerSync(ctx context.Context) (domain.SyncResult, error)
}

// PackageState is the registry view of one package.
type PackageState struct {
	ID     string                  `json:"id"`
	Status domain.GeoPackageStatus `json:"status"`
	Error  string                  `json:"error,omitempty"`
}

// HealthDetails is the body of the detailed health endpoint.
type HealthDetails struct {
	Healthy        bool
	Ready          bool
	PackagesLoaded int
	PackagesReady  int
	Packages       []PackageState
	Components     map[string]string // name -> "ok" or "unavailable: ..."
}
