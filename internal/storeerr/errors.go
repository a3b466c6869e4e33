// Package storeerr defines the error kinds shared by the storage and
// pipeline layers. Callers classify failures with errors.Is and wrap with
// fmt.Errorf("...: %w", kind) to add detail.
package storeerr

import "errors"

var (
	ErrValidation            = errors.New("validation_failed")
	ErrNotFound              = errors.New("not_found")
	ErrConflict              = errors.New("conflict")
	ErrDependencyUnavailable = errors.New("dependency_unavailable")
	ErrProcessing            = errors.New("processing_error")
)
