package vectordb

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Typed errors below unwrap to these so callers can use errors.Is.
var (
	ErrCollectionNotFound    = errors.New("collection not found")
	ErrCollectionExists      = errors.New("collection already exists with a different model")
	ErrDeleteBlueCollection  = errors.New("blue collection cannot be deleted")
	ErrInvalidFilter         = errors.New("invalid payload filter")
	ErrDimensionMismatch     = errors.New("vector dimension mismatch")
	ErrUnsupportedMetric     = errors.New("unsupported metric type")
	ErrLockAcquisition       = errors.New("failed to acquire object locks")
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// CollectionNotFoundError is returned when a collection or query collection does not exist.
type CollectionNotFoundError struct {
	CollectionID string
}

func (e *CollectionNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCollectionNotFound.Error(), e.CollectionID)
}

func (e *CollectionNotFoundError) Unwrap() error { return ErrCollectionNotFound }

// DeleteBlueCollectionError is returned on an attempt to delete the serving collection.
type DeleteBlueCollectionError struct {
	CollectionID string
}

func (e *DeleteBlueCollectionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDeleteBlueCollection.Error(), e.CollectionID)
}

func (e *DeleteBlueCollectionError) Unwrap() error { return ErrDeleteBlueCollection }

// InvalidFilterError is returned when a filter tree cannot be translated.
type InvalidFilterError struct {
	Reason string
}

func (e *InvalidFilterError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidFilter.Error(), e.Reason)
}

func (e *InvalidFilterError) Unwrap() error { return ErrInvalidFilter }

// NewInvalidFilterError formats an InvalidFilterError.
func NewInvalidFilterError(format string, args ...any) error {
	return &InvalidFilterError{Reason: fmt.Sprintf(format, args...)}
}

// DimensionMismatchError is returned when a vector does not fit the collection model.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %d, got %d", ErrDimensionMismatch.Error(), e.Expected, e.Got)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// UnsupportedMetricError is returned when no search routine exists for a metric.
type UnsupportedMetricError struct {
	Metric string
}

func (e *UnsupportedMetricError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnsupportedMetric.Error(), e.Metric)
}

func (e *UnsupportedMetricError) Unwrap() error { return ErrUnsupportedMetric }

// LockAcquisitionError is returned when row locks stay contended after all attempts.
type LockAcquisitionError struct {
	CollectionID string
	ObjectIDs    []string
	Attempts     int
	Err          error
}

func (e *LockAcquisitionError) Error() string {
	return fmt.Sprintf("%s on %s after %d attempts (objects: %s): %v",
		ErrLockAcquisition.Error(), e.CollectionID, e.Attempts, strings.Join(e.ObjectIDs, ","), e.Err)
}

func (e *LockAcquisitionError) Unwrap() []error { return []error{ErrLockAcquisition, e.Err} }

// OperationError wraps a failed transactional operation with its context.
// The transaction was rolled back before this error is returned.
type OperationError struct {
	Op           string
	CollectionID string
	ObjectIDs    []string
	Err          error
}

func (e *OperationError) Error() string {
	ids := strings.Join(e.ObjectIDs, ",")
	if len(ids) > 256 {
		ids = ids[:256] + "..."
	}
	return fmt.Sprintf("%s on collection %s failed (objects: %s): %v", e.Op, e.CollectionID, ids, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }
