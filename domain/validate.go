package domain

import (
	"strings"
	"time"
)

// MaxTaskTextLen caps the task text field.
const MaxTaskTextLen = 500

// Validation is the outcome of a pure validator. Calling a validator twice on
// the same input yields the same result.
type Validation struct {
	Valid  bool
	Errors []string
}

// Err converts a failed validation into a ValidationError, or nil when valid.
func (v Validation) Err() error {
	if v.Valid {
		return nil
	}
	return &ValidationError{Errors: v.Errors}
}

// ValidateTask checks caller-supplied task fields against model rules:
// non-empty text of at most MaxTaskTextLen runes, a known priority, and a
// deadline not strictly in the past at validation time.
func ValidateTask(data TaskData) Validation {
	return validateTaskFields(data.Text, data.Priority, data.Deadline, time.Now())
}

// ValidateTaskAt is ValidateTask with an explicit clock, for deterministic tests.
func ValidateTaskAt(data TaskData, now time.Time) Validation {
	return validateTaskFields(data.Text, data.Priority, data.Deadline, now)
}

func validateTaskFields(text string, priority Priority, deadline *time.Time, now time.Time) Validation {
	var errs []string
	if strings.TrimSpace(text) == "" {
		errs = append(errs, "task text is required")
	}
	if len([]rune(text)) > MaxTaskTextLen {
		errs = append(errs, "task text must be at most 500 characters")
	}
	if priority != "" && !KnownPriority(priority) {
		errs = append(errs, "unknown priority level")
	}
	if deadline != nil && deadline.Before(now) {
		errs = append(errs, "deadline cannot be in the past")
	}
	return Validation{Valid: len(errs) == 0, Errors: errs}
}

// ValidateTaskRecord re-validates a full task after a merge. Deadlines already
// persisted are allowed to be in the past so editing an overdue task's text
// does not fail.
func ValidateTaskRecord(task Task) Validation {
	var errs []string
	if strings.TrimSpace(task.Text) == "" {
		errs = append(errs, "task text is required")
	}
	if len([]rune(task.Text)) > MaxTaskTextLen {
		errs = append(errs, "task text must be at most 500 characters")
	}
	if !KnownPriority(task.Priority) {
		errs = append(errs, "unknown priority level")
	}
	return Validation{Valid: len(errs) == 0, Errors: errs}
}

// ValidateList checks caller-supplied list fields.
func ValidateList(data ListData) Validation {
	var errs []string
	if strings.TrimSpace(data.Name) == "" {
		errs = append(errs, "list name is required")
	}
	return Validation{Valid: len(errs) == 0, Errors: errs}
}
