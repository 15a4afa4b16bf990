// Package apperr defines sentinel errors shared across layers.
package apperr

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrNotTracked     = errors.New("document not tracked")
	ErrRead           = errors.New("read failed")
	ErrWrite          = errors.New("write failed")
	ErrUnsavedChanges = errors.New("unsaved changes")
	ErrConflict       = errors.New("conflict")
)
