package core

// Roles
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
	RoleManager = "manager"
)

var AllRoles = []string{RoleStudent, RoleAdmin, RoleManager}

// Actor is the authenticated user performing an operation, as carried by the session token.
type Actor struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Section   string `json:"section"`
	StudentID string `json:"student_id"`
}

func (a Actor) IsManager() bool { return a.Role == RoleManager }
func (a Actor) IsAdmin() bool   { return a.Role == RoleAdmin }
func (a Actor) IsStudent() bool { return a.Role == RoleStudent }

// IsStaff reports whether the actor is an admin or the manager.
func (a Actor) IsStaff() bool { return a.IsAdmin() || a.IsManager() }

// DisplayName prefers the actor's name over their username.
func (a Actor) DisplayName() string {
	if name := CleanString(a.Name); name != "" {
		return name
	}
	return a.Username
}

// CanManageSection reports whether the actor may act on an object belonging to section.
// The manager always can. An admin can when the section is unclaimed (empty) or is their own.
func (a Actor) CanManageSection(section string) bool {
	switch a.Role {
	case RoleManager:
		return true
	case RoleAdmin:
		return CleanString(section) == "" || SameSection(section, a.Section)
	default:
		return false
	}
}

// CanSeeSection reports whether a section scoped object is visible to the actor.
func (a Actor) CanSeeSection(section string) bool {
	return a.CanManageSection(section)
}
