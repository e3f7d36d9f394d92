package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRadius is returned for negative, NaN or infinite radii.
	ErrInvalidRadius = errors.New("radius must be a finite, non-negative number of kilometers")

	// ErrInvalidCoordinate is returned for latitudes outside [-90, 90],
	// longitudes outside [-180, 180] or non-finite values.
	ErrInvalidCoordinate = errors.New("coordinate out of range")
)

// InvalidCellError reports a malformed or non-existent cell identifier.
type InvalidCellError struct {
	Token  string
	Reason string
}

func (e *InvalidCellError) Error() string {
	return fmt.Sprintf("invalid cell %q: %s", e.Token, e.Reason)
}

// UnsupportedResolutionError reports a grid resolution outside the supported
// range, or one that cannot be used for the requested operation.
type UnsupportedResolutionError struct {
	Resolution int
	Reason     string
}

func (e *UnsupportedResolutionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("unsupported resolution %d", e.Resolution)
	}
	return fmt.Sprintf("unsupported resolution %d: %s", e.Resolution, e.Reason)
}

// SchemaMismatchError reports an expected column missing from an input dataset.
type SchemaMismatchError struct {
	Source string
	Column string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("%s: missing expected column %q", e.Source, e.Column)
}

// ProjectionError reports a coordinate reference system that is missing,
// unparseable or cannot be reconciled with WGS-84.
type ProjectionError struct {
	Source string
	CRS    string
	Err    error
}

func (e *ProjectionError) Error() string {
	msg := fmt.Sprintf("%s: unusable coordinate reference system", e.Source)
	if e.CRS != "" {
		msg += fmt.Sprintf(" %q", e.CRS)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProjectionError) Unwrap() error { return e.Err }
