package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/jobrunner/spatialquery/internal/domain"
	"github.com/jobrunner/spatialquery/internal/ports/input"
)

type packageResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	LayerCount  int       `json:"layer_count"`
	Ready       bool      `json:"ready"`
	LoadedAt    time.Time `json:"loaded_at"`
	LastQueried time.Time `json:"last_queried"`
}

func newPackageResponse(pkg *domain.GeoPackage) packageResponse {
	return packageResponse{
		ID:          pkg.ID,
		Name:        pkg.Name,
		Path:        pkg.Path,
		Size:        pkg.Size,
		LayerCount:  pkg.LayerCount(),
		Ready:       pkg.IsReady(),
		LoadedAt:    pkg.LoadedAt,
		LastQueried: pkg.LastQueried,
	}
}

type extentResponse struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

type layerResponse struct {
	Name           string              `json:"name"`
	Description    string              `json:"description"`
	GeometryType   domain.GeometryType `json:"geometry_type"`
	GeometryColumn string              `json:"geometry_column"`
	SRID           int                 `json:"srid"`
	FeatureCount   int64               `json:"feature_count"`
	Queryable      bool                `json:"queryable"`
	Dimension      string              `json:"dimension,omitempty"`
	Extent         *extentResponse     `json:"extent,omitempty"`
}

func newLayerResponse(l *domain.Layer) layerResponse {
	out := layerResponse{
		Name:           l.Name,
		Description:    l.Description,
		GeometryType:   l.GeometryType,
		GeometryColumn: l.GeometryColumn,
		SRID:           l.SRID,
		FeatureCount:   l.FeatureCount,
		Queryable:      l.Queryable(),
	}
	if dim, err := l.Dimension(); err == nil {
		out.Dimension = dim.String()
	}
	if e := l.Extent; e != nil {
		out.Extent = &extentResponse{MinX: e.MinX, MinY: e.MinY, MaxX: e.MaxX, MaxY: e.MaxY}
	}
	return out
}

func (s *Server) handleListPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := s.services.Packages.ListPackages(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	out := make([]packageResponse, len(packages))
	for i := range packages {
		out[i] = newPackageResponse(&packages[i])
	}
	s.writeJSON(w, http.StatusOK, struct {
		Packages []packageResponse `json:"packages"`
		Count    int               `json:"count"`
	}{out, len(out)})
}

func (s *Server) handleGetPackage(w http.ResponseWriter, r *http.Request) {
	pkg, err := s.services.Packages.GetPackage(r.Context(), mux.Vars(r)["packageId"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newPackageResponse(pkg))
}

func (s *Server) handleGetLayers(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["packageId"]
	pkg, err := s.services.Packages.GetPackage(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	layers := make([]layerResponse, len(pkg.Layers))
	for i := range pkg.Layers {
		layers[i] = newLayerResponse(&pkg.Layers[i])
	}
	s.writeJSON(w, http.StatusOK, struct {
		PackageID string          `json:"package_id"`
		Layers    []layerResponse `json:"layers"`
		Count     int             `json:"count"`
	}{id, layers, len(layers)})
}

type healthResponse struct {
	Status         string               `json:"status"`
	Ready          bool                 `json:"ready"`
	PackagesLoaded int                  `json:"packages_loaded"`
	PackagesReady  int                  `json:"packages_ready"`
	Packages       []input.PackageState `json:"packages"`
	Components     map[string]string    `json:"components"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	d := s.services.Health.GetHealthDetails(r.Context())

	code, status := http.StatusOK, "ok"
	if !d.Healthy {
		code, status = http.StatusServiceUnavailable, "unhealthy"
	}
	s.writeJSON(w, code, healthResponse{
		Status:         status,
		Ready:          d.Ready,
		PackagesLoaded: d.PackagesLoaded,
		PackagesReady:  d.PackagesReady,
		Packages:       orEmpty(d.Packages),
		Components:     d.Components,
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.probe(w, s.services.Health.IsHealthy(r.Context()), "unhealthy")
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	s.probe(w, s.services.Health.IsReady(r.Context()), "not ready")
}

func (s *Server) probe(w http.ResponseWriter, ok bool, failure string) {
	if ok {
		s.writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
		return
	}
	s.writeJSON(w, http.StatusServiceUnavailable, statusResponse{Status: failure})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.services.Sync.TriggerSync(r.Context())

	var retry *domain.RetryError
	switch {
	case errors.As(err, &retry):
		secs := retryAfterSeconds(retry.After)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		s.writeError(w, http.StatusTooManyRequests, fmt.Sprintf("sync rate limited, retry in %d seconds", secs))
	case err != nil:
		s.logger.Error("manual sync failed", "error", err)
		s.writeError(w, http.StatusBadGateway, "sync failed")
	default:
		s.writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	doc, err := getOpenAPIJSON()
	if err != nil {
		s.logger.Error("openapi document unavailable", "error", err)
		s.writeError(w, http.StatusInternalServerError, "openapi document unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(doc)
}
