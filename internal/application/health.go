package application

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/jobrunner/spatialquery/internal/ports/input"
)

// componentCheckTimeout bounds a single component check.
const componentCheckTimeout = 2 * time.Second

// ComponentCheck reports whether an optional component works.
type ComponentCheck func(ctx context.Context) error

// PackageStates is the part of the registry health reporting needs.
type PackageStates interface {
	Counts() (total, ready int)
	States() []input.PackageState
}

// HealthService answers liveness and readiness probes. Component checks are
// informational: a failing one shows up in the details while the service
// stays healthy.
type HealthService struct {
	packages PackageStates

	mu     sync.RWMutex
	checks map[string]ComponentCheck
}

// NewHealthService creates a health service over a package registry.
func NewHealthService(packages PackageStates) *HealthService {
	return &HealthService{
		packages: packages,
		checks:   make(map[string]ComponentCheck),
	}
}

// AddCheck registers a named component check.
func (s *HealthService) AddCheck(name string, check ComponentCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// IsHealthy reports liveness. The process answering is enough.
func (s *HealthService) IsHealthy(context.Context) bool {
	return true
}

// IsReady reports whether queries can be served: some package is ready, or
// nothing is registered yet.
func (s *HealthService) IsReady(context.Context) bool {
	total, ready := s.packages.Counts()
	return total == 0 || ready > 0
}

// GetHealthDetails runs the component checks and collects package states.
func (s *HealthService) GetHealthDetails(ctx context.Context) input.HealthDetails {
	total, ready := s.packages.Counts()
	return input.HealthDetails{
		Healthy:        s.IsHealthy(ctx),
		Ready:          total == 0 || ready > 0,
		PackagesLoaded: total,
		PackagesReady:  ready,
		Packages:       s.packages.States(),
		Components:     s.runChecks(ctx),
	}
}

func (s *HealthService) runChecks(ctx context.Context) map[string]string {
	s.mu.RLock()
	checks := maps.Clone(s.checks)
	s.mu.RUnlock()

	out := make(map[string]string, len(checks))
	for name, check := range checks {
		out[name] = checkStatus(ctx, check)
	}
	return out
}

func checkStatus(ctx context.Context, check ComponentCheck) string {
	ctx, cancel := context.WithTimeout(ctx, componentCheckTimeout)
	defer cancel()

	if err := check(ctx); err != nil {
		return "unavailable: " + err.Error()
	}
	return "ok"
}
