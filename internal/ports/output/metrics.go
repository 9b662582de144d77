package output

import "time"

// QueryMetrics observes relation queries.
type QueryMetrics interface {
	IncQueryCount(relation string, success bool)
	ObserveQueryDuration(relation string, d time.Duration)
	// AddInvalidFeatures counts features skipped for a missing or empty
	// geometry; role is "target" or "reference".
	AddInvalidFeatures(role string, count int)
	// AddPredicateFailures counts feature pairs the engine could not evaluate.
	AddPredicateFailures(count int)
}

// RegistryMetrics observes the package registry.
type RegistryMetrics interface {
	SetPackagesLoaded(count int)
	SetPackagesReady(count int)
}

// StorageMetrics observes object storage calls.
type StorageMetrics interface {
	IncStorageOperations(operation string, success bool)
	ObserveStorageDuration(operation string, d time.Duration)
}

// MetricsCollector is the full metrics port.
type MetricsCollector interface {
	QueryMetrics
	RegistryMetrics
	StorageMetrics
}

// NoOpMetrics discards everything. Embed it to override single methods in
// tests.
type NoOpMetrics struct{}

func (NoOpMetrics) IncQueryCount(string, bool) {}
func (NoOpMetrics) ObserveQueryDuration(string, time.Duration) {}
func (NoOpMetrics) AddInvalidFeatures(string, int) {}
func (NoOpMetrics) AddPredicateFailures(int) {}
func (NoOpMetrics) SetPackagesLoaded(int) {}
func (NoOpMetrics) SetPackagesReady(int) {}
func (NoOpMetrics) IncStorageOperations(string, bool) {}
func (NoOpMetrics) ObserveStorageDuration(string, time.Duration) {}
