package domain

import (
	"errors"
	"fmt"
)

// Base error types (sentinel errors).
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnsupported  = errors.New("unsupported operation")
	ErrInternal     = errors.New("internal error")
	ErrUnavailable  = errors.New("service unavailable")
)

// Specific errors.
var (
	ErrLayerNotFound     = fmt.Errorf("layer: %w", ErrNotFound)
	ErrObjectNotFound    = fmt.Errorf("storage object: %w", ErrNotFound)
	ErrFormat            = fmt.Errorf("format: %w", ErrInvalidInput)
	ErrUnsupportedFormat = fmt.Errorf("file format: %w", ErrUnsupported)
	ErrDecode            = fmt.Errorf("decode: %w", ErrInvalidInput)
	ErrRender            = fmt.Errorf("render: %w", ErrInternal)
	ErrNoViewport        = fmt.Errorf("viewport: %w", ErrUnavailable)
	ErrViewportClosed    = fmt.Errorf("viewport closed: %w", ErrUnavailable)
	ErrReservedLayer     = fmt.Errorf("reserved layer: %w", ErrUnsupported)
)

// FormatError reports a well-formed file whose content does not match the
// schema expected for its format.
type FormatError struct {
	Format string // Claimed format, e.g. "geojson"
	Reason string // What was wrong
	Err    error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s: %s: %v", e.Format, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid %s: %s", e.Format, e.Reason)
}

// Unwrap returns the underlying error.
func (e *FormatError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrFormat.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// UnsupportedFormatError reports a file whose extension is not recognized.
type UnsupportedFormatError struct {
	Extension string // Rejected extension including the dot, may be empty
	Reason    string // Optional detail for recognized containers with unsupported content
}

// Error implements the error interface.
func (e *UnsupportedFormatError) Error() string {
	ext := e.Extension
	if ext == "" {
		ext = "(none)"
	}
	if e.Reason != "" {
		return fmt.Sprintf("unsupported file format %s: %s", ext, e.Reason)
	}
	return fmt.Sprintf("unsupported file format %s", ext)
}

// Unwrap returns the base error type.
func (e *UnsupportedFormatError) Unwrap() error {
	return ErrUnsupportedFormat
}

// DecodeError reports bytes that could not be parsed as the claimed format.
type DecodeError struct {
	Format string // Claimed format
	Err    error  // Underlying parse error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %v", e.Format, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrDecode.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// RenderError reports a failure turning decoded raster samples into an image.
type RenderError struct {
	Stage string // Stage that failed, e.g. "allocate" or "encode"
	Err   error  // Underlying error
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	return fmt.Sprintf("rendering raster (%s): %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *RenderError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrRender.
func (e *RenderError) Is(target error) bool {
	return target == ErrRender
}

// IsIngestionError reports whether err belongs to the ingestion taxonomy.
func IsIngestionError(err error) bool {
	return errors.Is(err, ErrFormat) ||
		errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrDecode) ||
		errors.Is(err, ErrRender)
}

// ValidationError represents a detailed validation error.
type ValidationError struct {
	Field      string      // Field that failed validation
	Value      interface{} // The invalid value
	Constraint string      // The constraint that was violated
	Message    string      // Human-readable message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v, constraint: %s)",
		e.Field, e.Message, e.Value, e.Constraint)
}

// Unwrap returns the underlying error type.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// StorageError represents an error during storage operations.
type StorageError struct {
	Operation string // Operation that failed (download, list, etc.)
	Key       string // Object key
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage error during %s for %s: %v",
			e.Operation, e.Key, e.Err)
	}
	return fmt.Sprintf("storage error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}
