package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrDuplicateID          = errors.New("duplicate id")
	ErrIndexOutOfRange      = errors.New("index out of range")
	ErrReferentialIntegrity = errors.New("referential integrity")
	ErrStructuralInvalid    = errors.New("structurally invalid graph")
)

// ReferenceError is returned when deleting a node that is still referenced.
type ReferenceError struct {
	Kind         string // "track" or "asset"
	ID           string
	ReferencedBy []string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s %q is still referenced by %s", e.Kind, e.ID, strings.Join(e.ReferencedBy, ", "))
}

func (e *ReferenceError) Unwrap() error { return ErrReferentialIntegrity }

// ValidationError carries every violation found by Validate.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return "invalid graph: " + e.Violations[0].String()
	}
	return fmt.Sprintf("invalid graph: %d violations, first: %s", len(e.Violations), e.Violations[0].String())
}

func (e *ValidationError) Unwrap() error { return ErrStructuralInvalid }

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

func badIndex(kind string, i, n int) error {
	return fmt.Errorf("%s index %d (have %d): %w", kind, i, n, ErrIndexOutOfRange)
}
