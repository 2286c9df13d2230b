package domain

import (
	"time"

	"github.com/google/uuid"
)

// List is a named column of tasks within a board.
type List struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Archived  bool      `json:"archived,omitempty"`
}

// ListData carries caller-supplied fields for a new list.
type ListData struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Color    string `json:"color,omitempty"`
	Position int    `json:"position,omitempty"`
}

// NewList builds a list from caller data. Position defaults to append-to-end;
// callers pass the current list count.
func NewList(data ListData, position int) List {
	now := time.Now().UTC()
	id := data.ID
	if id == "" {
		id = uuid.NewString()
	}
	color := data.Color
	if color == "" {
		color = "primary"
	}
	return List{
		ID:        id,
		Name:      data.Name,
		Color:     color,
		Position:  position,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
