package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrLocked            = errors.New("state is locked by another run")
	ErrConflict          = errors.New("state version conflict")
	ErrDeletionProtected = errors.New("deletion protection is enabled")
)

type BlockingError struct {
	ComponentID string
	Reason      string
}

func (e *BlockingError) Error() string {
	return e.Reason
}

// DependencyError reports a resource whose dependency is undeclared or not yet available.
type DependencyError struct {
	Resource string
	Missing  string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("resource %q depends on %q, which is not available", e.Resource, e.Missing)
}

// MissingInputError reports a required provisioning input that was not supplied.
type MissingInputError struct {
	Field string
	Env   string
}

func (e *MissingInputError) Error() string {
	if e.Env != "" {
		return fmt.Sprintf("missing required input %s (set %s)", e.Field, e.Env)
	}
	return fmt.Sprintf("missing required input %s", e.Field)
}

// DriftError reports an immutable attribute of a stable resource that no longer matches.
type DriftError struct {
	Resource string
	Field    string
	Want     string
	Got      string
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("resource %q: %s is %q, want %q; replacing it requires an explicit teardown", e.Resource, e.Field, e.Got, e.Want)
}
