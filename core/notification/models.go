package notification

import "time"

// Types
const (
	TypeRegistration = "registration"
	TypeUpdate       = "update"
	TypeApproval     = "approval"
	TypeDecline      = "decline"
	TypeImport       = "import"
	TypeAttendance   = "attendance"
	TypeAdmin        = "admin"
	TypePassword     = "password"
	TypeSchedule     = "schedule"
	TypeGeneral      = "general"
)

type Notification struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Message       string    `json:"message"`
	TargetSection string    `json:"target_section"`
	FromUsername  string    `json:"from_username"`
	DismissedBy   []string  `json:"dismissed_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// IsDismissedBy reports whether username already dismissed the notification.
func (n Notification) IsDismissedBy(username string) bool {
	for _, u := range n.DismissedBy {
		if u == username {
			return true
		}
	}
	return false
}

// NewNotification is what staff may post directly.
type NewNotification struct {
	Type          string `json:"type"`
	Message       string `json:"message" validate:"required,notblank,max=2000"`
	TargetSection string `json:"target_section" validate:"max=150"`
}

type QueryFilter struct {
	// Section limits results to the section plus untargeted notifications. Ignored when AllSections is set.
	Section     string
	AllSections bool
	// ExcludeDismissedBy hides notifications the user dismissed.
	ExcludeDismissedBy string
	Limit              int
}
