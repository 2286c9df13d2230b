package api

import (
	"boardsync/domain"
	"boardsync/engine"
	"boardsync/state"
)

// Authenticator resolves the signed-in user from an Authorization header.
type Authenticator interface {
	UserFromAuthHeader(string) (engine.User, error)
}

type addTaskRequest struct {
	ListID string          `json:"listId"`
	Task   domain.TaskData `json:"task"`
}

type moveTaskRequest struct {
	TaskID       string `json:"taskId"`
	SourceListID string `json:"sourceListId"`
	DestListID   string `json:"destListId"`
	DestIndex    int    `json:"destIndex"`
}

type inviteMemberRequest struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

type updateBoardRequest struct {
	Name  *string `json:"name,omitempty"`
	Color *int    `json:"color,omitempty"`
}

// boardResponse is the full document plus the derived list display order, so
// clients never have to rely on map iteration order.
type boardResponse struct {
	domain.Document
	ListOrder []string `json:"listOrder"`
}

type resultResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

type taskResponse struct {
	Success bool        `json:"success"`
	Task    domain.Task `json:"task"`
}

type listResponse struct {
	Success bool        `json:"success"`
	List    domain.List `json:"list"`
}

type memberResponse struct {
	Success bool          `json:"success"`
	Member  domain.Member `json:"member"`
}

type tasksResponse struct {
	Success bool          `json:"success"`
	Tasks   []domain.Task `json:"tasks"`
}

type dueTasksResponse struct {
	Success bool          `json:"success"`
	Overdue []domain.Task `json:"overdue"`
	DueSoon []domain.Task `json:"dueSoon"`
}

type statsResponse struct {
	Success bool        `json:"success"`
	Stats   state.Stats `json:"stats"`
}
