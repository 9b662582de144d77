package domain

import (
	"fmt"
	"time"
)

// SyncResult reports one registry sync against object storage.
type SyncResult struct {
	PackagesAdded   int       `json:"packages_added"`
	PackagesUpdated int       `json:"packages_updated"`
	PackagesRemoved int       `json:"packages_removed"`
	PackagesTotal   int       `json:"packages_total"`
	SyncedAt        time.Time `json:"synced_at"`
	NextScheduledAt time.Time `json:"next_scheduled_at,omitzero"`
}

// RetryError asks the caller to repeat the request after a delay.
type RetryError struct {
	After time.Duration
	Err   error
}

// Error implements the error interface.
func (e *RetryError) Error() string {
	return fmt.Sprintf("%v (retry in %s)", e.Err, e.After.Round(time.Second))
}

// Unwrap returns the underlying error.
func (e *RetryError) Unwrap() error {
	return e.Err
}
