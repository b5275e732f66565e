// Package services holds the quotation workflow and the reference data
// around it. Services take a context, talk to gorm, keep their read caches
// coherent and return sentinel errors that handlers map to HTTP statuses.
package services

import (
	"errors"
	"sort"
	"strings"

	"github.com/diewo77/go-quotations/validation"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrVersionConflict    = errors.New("quotation was modified since it was loaded")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrInvalidRole        = errors.New("invalid role")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrStorage            = errors.New("storage operation failed")
)

// ValidationError carries field violations from a rejected submission.
type ValidationError struct {
	Violations validation.Violations
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Violations))
	for f := range e.Violations {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

func invalid(v validation.Violations) error {
	if v.Empty() {
		return nil
	}
	return &ValidationError{Violations: v}
}

// Viewer is the caller on whose behalf a read runs. Non-admin viewers only
// see their own quotations.
type Viewer struct {
	ID    uint
	Admin bool
}
