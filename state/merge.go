package state

import (
	"time"

	"boardsync/domain"
)

// TaskUpdates is an explicit per-field merge for tasks. Only fields named
// here can be overwritten; unknown keys in a request fail at decode time.
// Nil pointers leave the current value untouched.
type TaskUpdates struct {
	Text          *string          `json:"text,omitempty"`
	Description   *string          `json:"description,omitempty"`
	Priority      *domain.Priority `json:"priority,omitempty"`
	Deadline      *time.Time       `json:"deadline,omitempty"`
	ClearDeadline bool             `json:"clearDeadline,omitempty"`
	AssignedTo    *string          `json:"assignedTo,omitempty"`
	Tags          []string         `json:"tags,omitempty"`
	Completed     *bool            `json:"completed,omitempty"`
	Archived      *bool            `json:"archived,omitempty"`
	Comments      []domain.Comment `json:"comments,omitempty"`
}

// Apply merges the updates into a copy of the task and refreshes UpdatedAt.
func (u TaskUpdates) Apply(task domain.Task) domain.Task {
	now := time.Now().UTC()
	if u.Text != nil {
		task.Text = *u.Text
	}
	if u.Description != nil {
		task.Description = *u.Description
	}
	if u.Priority != nil {
		task.Priority = *u.Priority
	}
	if u.Deadline != nil {
		d := *u.Deadline
		task.Deadline = &d
	}
	if u.ClearDeadline {
		task.Deadline = nil
	}
	if u.AssignedTo != nil {
		task.AssignedTo = *u.AssignedTo
	}
	if u.Tags != nil {
		task.Tags = append([]string(nil), u.Tags...)
	}
	if u.Comments != nil {
		task.Comments = append([]domain.Comment(nil), u.Comments...)
	}
	if u.Completed != nil {
		if *u.Completed {
			if task.CompletedAt == nil {
				task.CompletedAt = &now
			}
		} else {
			task.CompletedAt = nil
		}
	}
	if u.Archived != nil {
		task.Archived = *u.Archived
	}
	task.UpdatedAt = now
	return task
}

// ListUpdates is the explicit merge type for lists.
type ListUpdates struct {
	Name     *string `json:"name,omitempty"`
	Color    *string `json:"color,omitempty"`
	Position *int    `json:"position,omitempty"`
	Archived *bool   `json:"archived,omitempty"`
}

// Apply merges the updates into a copy of the list and refreshes UpdatedAt.
func (u ListUpdates) Apply(list domain.List) domain.List {
	if u.Name != nil {
		list.Name = *u.Name
	}
	if u.Color != nil {
		list.Color = *u.Color
	}
	if u.Position != nil {
		list.Position = *u.Position
	}
	if u.Archived != nil {
		list.Archived = *u.Archived
	}
	list.UpdatedAt = time.Now().UTC()
	return list
}
