// Package errors consolidates error definitions for the indicator cache.
//
// This package provides:
// - Sentinel errors for all error conditions
// - Error category checking functions (validation / io / upstream)
// - Error wrapping utilities
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Validation errors - the row set never reaches disk
	ErrValidation       = errors.New("validation failed")
	ErrMissingColumn    = errors.New("missing required column")
	ErrSymbolMismatch   = errors.New("row symbol does not match partition symbol")
	ErrDateMismatch     = errors.New("row date does not match partition date")
	ErrInvalidTimeframe = errors.New("invalid timeframe")
	ErrInvalidRange     = errors.New("invalid date range")
	ErrInvalidConfig    = errors.New("invalid configuration")

	// IO errors - partition file read/write/delete failures
	ErrIO                = errors.New("io error")
	ErrPartitionNotFound = errors.New("partition not found")
	ErrMalformedFilename = errors.New("malformed partition filename")

	// Upstream errors - raw-data store or calculation function failures
	ErrUpstream    = errors.New("upstream error")
	ErrRawStore    = errors.New("raw store error")
	ErrCalculation = errors.New("calculation error")

	// State errors
	ErrClosed   = errors.New("closed")
	ErrNotFound = errors.New("not found")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrMissingColumn) ||
		errors.Is(err, ErrSymbolMismatch) ||
		errors.Is(err, ErrDateMismatch) ||
		errors.Is(err, ErrInvalidTimeframe) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidConfig)
}

// IsIO returns true if err is a partition file I/O error.
func IsIO(err error) bool {
	return errors.Is(err, ErrIO) ||
		errors.Is(err, ErrPartitionNotFound) ||
		errors.Is(err, ErrMalformedFilename)
}

// IsUpstream returns true if err comes from an external collaborator.
func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstream) ||
		errors.Is(err, ErrRawStore) ||
		errors.Is(err, ErrCalculation)
}

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPartitionNotFound)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrValidation)
}

// NewIO wraps a file error into the IO category.
func NewIO(op, path string, err error) error {
	return fmt.Errorf("%s %s: %v: %w", op, path, err, ErrIO)
}

// NewUpstream wraps a collaborator error into the upstream category.
func NewUpstream(source string, err error) error {
	return fmt.Errorf("%s: %v: %w", source, err, ErrUpstream)
}
