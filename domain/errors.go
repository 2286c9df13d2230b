package domain

import (
	"fmt"
	"strings"
)

// ValidationError reports entity data that fails model rules. It is resolved
// locally and never reaches the remote store.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "invalid data: " + strings.Join(e.Errors, ", ")
}

// NotFoundError reports an intent referencing a task or list absent from
// current local state, typically a stale reference.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s no longer exists", e.Kind, e.ID)
}
