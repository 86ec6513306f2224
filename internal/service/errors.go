package service

import (
	"fmt"

	"erp-conflict-engine/internal/domain"
)

// ConflictNotFoundError means the referenced conflict is not awaiting
// resolution: it never existed, or it was already resolved.
type ConflictNotFoundError struct {
	ConflictID string
}

func (e *ConflictNotFoundError) Error() string {
	return fmt.Sprintf("conflict %s not found in active set", e.ConflictID)
}

// InvalidResolutionError is a caller error: the requested resolution
// cannot be attempted as specified.
type InvalidResolutionError struct {
	Reason string
}

func (e *InvalidResolutionError) Error() string {
	return fmt.Sprintf("invalid resolution: %s", e.Reason)
}

// UnsupportedValueTypeError rejects a manual value whose kind cannot be
// supplied by hand.
type UnsupportedValueTypeError struct {
	Field string
	Kind  domain.ValueKind
}

func (e *UnsupportedValueTypeError) Error() string {
	return fmt.Sprintf("unsupported value type %q for manual field %q", e.Kind, e.Field)
}

// PersistenceError wraps a durable-store failure. Detection swallows it;
// resolution propagates it, since losing the resolution outcome is an
// audit-integrity problem.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
