package domain

import "time"

// Settings holds per-board behavior switches.
type Settings struct {
	AllowComments               bool `json:"allowComments"`
	AllowTaskCreation           bool `json:"allowTaskCreation"`
	AllowMemberInvites          bool `json:"allowMemberInvites"`
	EnableDeadlineNotifications bool `json:"enableDeadlineNotifications"`
	AutoArchiveCompletedTasks   bool `json:"autoArchiveCompletedTasks"`
}

// DefaultSettings returns the settings applied to a freshly created board.
func DefaultSettings() Settings {
	return Settings{
		AllowComments:               true,
		AllowTaskCreation:           true,
		AllowMemberInvites:          true,
		EnableDeadlineNotifications: true,
	}
}

// Board is the metadata of one collaborative board document.
type Board struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Color      int       `json:"color"`
	Owner      string    `json:"owner"`
	OwnerEmail string    `json:"ownerEmail"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Document is the full persisted shape of one board: metadata plus the list
// and task maps, keyed the way the remote store addresses them. A snapshot
// delivered by the subscription channel is exactly this shape.
type Document struct {
	Board    Board             `json:"board"`
	Members  map[string]Member `json:"members"`
	Settings Settings          `json:"settings"`
	Lists    map[string]List   `json:"lists"`
	Tasks    map[string][]Task `json:"tasks"`
}

// NewDocument builds the default document for a first-time board open:
// the three standard columns with empty task sequences and the owner as the
// sole active member.
func NewDocument(boardID, name string, color int, ownerID, ownerEmail string) Document {
	now := time.Now().UTC()
	lists := map[string]List{
		"todo":       {ID: "todo", Name: "To Do", Color: "primary", Position: 0, CreatedAt: now, UpdatedAt: now},
		"inprogress": {ID: "inprogress", Name: "In Progress", Color: "warning", Position: 1, CreatedAt: now, UpdatedAt: now},
		DoneListID:   {ID: DoneListID, Name: "Done", Color: "success", Position: 2, CreatedAt: now, UpdatedAt: now},
	}
	tasks := make(map[string][]Task, len(lists))
	for id := range lists {
		tasks[id] = []Task{}
	}
	return Document{
		Board: Board{
			ID:         boardID,
			Name:       name,
			Color:      color,
			Owner:      ownerID,
			OwnerEmail: ownerEmail,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		Members: map[string]Member{
			ownerEmail: NewMember(ownerEmail, RoleOwner, ownerID),
		},
		Settings: DefaultSettings(),
		Lists:    lists,
		Tasks:    tasks,
	}
}
