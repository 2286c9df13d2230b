package domain

import (
	"time"

	"github.com/google/uuid"
)

// Priority orders tasks by importance.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// KnownPriority reports whether p is one of the defined priority levels.
func KnownPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// DoneListID is the terminal list. A task whose ListID equals DoneListID
// carries a non-nil CompletedAt; moving it out clears CompletedAt.
const DoneListID = "done"

// Task is a single board item.
type Task struct {
	ID          string     `json:"id"`
	Text        string     `json:"text"`
	Description string     `json:"description,omitempty"`
	ListID      string     `json:"listId"`
	Position    int        `json:"position"`
	Priority    Priority   `json:"priority"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	AssignedTo  string     `json:"assignedTo,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Comments    []Comment  `json:"comments,omitempty"`
	Archived    bool       `json:"archived,omitempty"`
}

// Comment is an entry in a task's discussion thread.
type Comment struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	AuthorID    string    `json:"authorId"`
	AuthorEmail string    `json:"authorEmail,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TaskData carries caller-supplied fields for a new task.
type TaskData struct {
	Text        string     `json:"text"`
	Description string     `json:"description,omitempty"`
	Priority    Priority   `json:"priority,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	AssignedTo  string     `json:"assignedTo,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
}

// NewTask builds a task from caller data. The id is a UUID so two tasks
// created within the same millisecond never collide. Callers pass the current
// length of the target list so the position appends to the end.
func NewTask(data TaskData, listID string, position int) Task {
	now := time.Now().UTC()
	priority := data.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	return Task{
		ID:          uuid.NewString(),
		Text:        data.Text,
		Description: data.Description,
		ListID:      listID,
		Position:    position,
		Priority:    priority,
		Deadline:    data.Deadline,
		CreatedAt:   now,
		UpdatedAt:   now,
		AssignedTo:  data.AssignedTo,
		Tags:        data.Tags,
	}
}

// NewComment builds a comment authored by the given user.
func NewComment(text, authorID, authorEmail string) Comment {
	return Comment{
		ID:          uuid.NewString(),
		Text:        text,
		AuthorID:    authorID,
		AuthorEmail: authorEmail,
		CreatedAt:   time.Now().UTC(),
	}
}
