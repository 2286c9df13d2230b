package domain

import "time"

// Role is a member's access level on a board.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// MemberStatus tracks whether an invited member has accepted.
type MemberStatus string

const (
	MemberActive  MemberStatus = "active"
	MemberPending MemberStatus = "pending"
)

// Member is a board participant keyed by email.
type Member struct {
	Email     string       `json:"email"`
	Role      Role         `json:"role"`
	Status    MemberStatus `json:"status"`
	InvitedBy string       `json:"invitedBy,omitempty"`
	JoinedAt  time.Time    `json:"joinedAt"`
}

// NewMember builds an active member record.
func NewMember(email string, role Role, invitedBy string) Member {
	return Member{
		Email:     email,
		Role:      role,
		Status:    MemberActive,
		InvitedBy: invitedBy,
		JoinedAt:  time.Now().UTC(),
	}
}

// Permissions is the capability set derived from a role. It is never stored:
// re-derive it from the role whenever the role changes.
type Permissions struct {
	ViewBoard     bool
	CreateTasks   bool
	EditTasks     bool
	DeleteTasks   bool
	CreateLists   bool
	EditLists     bool
	DeleteLists   bool
	InviteMembers bool
	RemoveMembers bool
	EditSettings  bool
	DeleteBoard   bool
	ArchiveBoard  bool
}

// PermissionsForRole maps a role to its capability set. The mapping is total:
// unknown roles get the viewer set.
func PermissionsForRole(role Role) Permissions {
	p := Permissions{ViewBoard: true}
	switch role {
	case RoleOwner:
		return Permissions{
			ViewBoard:     true,
			CreateTasks:   true,
			EditTasks:     true,
			DeleteTasks:   true,
			CreateLists:   true,
			EditLists:     true,
			DeleteLists:   true,
			InviteMembers: true,
			RemoveMembers: true,
			EditSettings:  true,
			DeleteBoard:   true,
			ArchiveBoard:  true,
		}
	case RoleAdmin:
		p.CreateTasks = true
		p.EditTasks = true
		p.DeleteTasks = true
		p.CreateLists = true
		p.EditLists = true
		p.DeleteLists = true
		p.InviteMembers = true
		p.EditSettings = true
	case RoleMember:
		p.CreateTasks = true
		p.EditTasks = true
		p.CreateLists = true
	}
	return p
}
