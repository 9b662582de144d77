package domain

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by the service wraps one of them, so
// adapters can map errors to status codes with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnsupported  = errors.New("unsupported")
	ErrUnavailable  = errors.New("unavailable")
)

var (
	ErrPackageNotFound = fmt.Errorf("geopackage %w", ErrNotFound)
	ErrLayerNotFound   = fmt.Errorf("layer %w", ErrNotFound)

	ErrUnknownRelation       = fmt.Errorf("unknown relation: %w", ErrInvalidInput)
	ErrRelationNotApplicable = fmt.Errorf("relation not applicable to layer pair: %w", ErrInvalidInput)
	ErrInvalidGeometry       = fmt.Errorf("malformed geometry: %w", ErrInvalidInput)

	ErrUnsupportedGeometryType = fmt.Errorf("geometry type %w", ErrUnsupported)
	ErrUnsupportedProjection   = fmt.Errorf("projection %w", ErrUnsupported)

	ErrNotReady        = fmt.Errorf("package not ready: %w", ErrUnavailable)
	ErrSyncRateLimited = fmt.Errorf("sync rate limited: %w", ErrUnavailable)
)

// ValidationError rejects a request field. Message is safe to show to
// clients.
type ValidationError struct {
	Field      string
	Value      any
	Constraint string
	Message    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s (%s)", e.Field, e.Value, e.Message, e.Constraint)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// ConfigError rejects a setting before any work starts, e.g. a relation
// name the engine does not know. Err defaults to ErrInvalidInput.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error {
	if e.Err == nil {
		return ErrInvalidInput
	}
	return e.Err
}

// QueryError locates a failure in a package and optionally a layer.
type QueryError struct {
	PackageID string
	Layer     string
	Err       error
}

func (e *QueryError) Error() string {
	where := e.PackageID
	if e.Layer != "" {
		where += ":" + e.Layer
	}
	return fmt.Sprintf("%s: %v", where, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// StorageError is a failed object storage call.
type StorageError struct {
	Operation string // list, download, read, exists, open
	Key       string
	Err       error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Operation, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PredicateError is an engine failure for one target/reference pair.
type PredicateError struct {
	Relation    Relation
	TargetID    FeatureID
	ReferenceID FeatureID
	Err         error
}

func (e *PredicateError) Error() string {
	return fmt.Sprintf("%s(target %d, reference %d): %v", e.Relation, e.TargetID, e.ReferenceID, e.Err)
}

func (e *PredicateError) Unwrap() error { return e.Err }

// ReprojectionError is a target geometry that could not be mapped into the
// reference layer's spatial reference system.
type ReprojectionError struct {
	FeatureID FeatureID
	FromSRID  int
	ToSRID    int
	Err       error
}

func (e *ReprojectionError) Error() string {
	return fmt.Sprintf("reproject feature %d from EPSG:%d to EPSG:%d: %v", e.FeatureID, e.FromSRID, e.ToSRID, e.Err)
}

func (e *ReprojectionError) Unwrap() error { return e.Err }
