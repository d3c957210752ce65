package user

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/gibigubae/registry/core"
)

// Statuses
const (
	StatusActive  = "active"
	StatusBlocked = "blocked"
)

// PasswordCost is the bcrypt cost used for every stored password.
const PasswordCost = 10

type User struct {
	ID                 int       `json:"id"`
	Username           string    `json:"username"`
	Name               string    `json:"name"`
	Role               string    `json:"role"`
	Section            string    `json:"section"`
	Status             string    `json:"status"`
	MustChangePassword bool      `json:"must_change_password"`
	PhotoURL           string    `json:"photo_url"`
	StudentID          string    `json:"student_id"`
	PasswordHash       []byte    `json:"-"`
	LastActivity       time.Time `json:"last_activity"` // UTC
	CreatedAt          time.Time `json:"created_at"`    // UTC
	UpdatedAt          time.Time `json:"updated_at"`    // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), PasswordCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsBlocked() bool  { return u.Status == StatusBlocked }
func (u *User) IsManager() bool  { return u.Role == core.RoleManager }
func (u *User) IsAdmin() bool    { return u.Role == core.RoleAdmin }
func (u *User) IsStudent() bool  { return u.Role == core.RoleStudent }
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// Actor returns the session identity of the user.
func (u *User) Actor() core.Actor {
	return core.Actor{
		ID:        u.ID,
		Username:  u.Username,
		Name:      u.Name,
		Role:      u.Role,
		Section:   u.Section,
		StudentID: u.StudentID,
	}
}

// StudentIDFromUsername derives the student id a self signed-up student is filed under.
func StudentIDFromUsername(username string) string {
	return core.CleanString(username)
}

// Signup contains what a student provides to create an account.
type Signup struct {
	Username string `json:"username" validate:"required,min=3,max=100,username"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

func (s *Signup) Clean() {
	s.Username = core.CleanString(s.Username)
}

// NewAdmin contains information needed by the manager to register a section admin.
type NewAdmin struct {
	Username string `json:"username" validate:"required,min=3,max=100,username"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Name     string `json:"name" validate:"required,notblank,max=255"`
	Section  string `json:"section" validate:"required,notblank,max=150"`
}

func (na *NewAdmin) Clean() {
	na.Username = core.CleanString(na.Username)
	na.Name = core.CleanString(na.Name)
	na.Section = core.CleanString(na.Section)
}

// UpdateAdmin defines what the manager may change on an admin. Empty fields are left untouched.
type UpdateAdmin struct {
	Username string `json:"username" validate:"omitempty,min=3,max=100,username"`
	Password string `json:"password" validate:"omitempty,min=6,max=72"`
	Name     string `json:"name" validate:"max=255"`
	Section  string `json:"section" validate:"max=150"`
}

func (ua *UpdateAdmin) Clean() {
	ua.Username = core.CleanString(ua.Username)
	ua.Name = core.CleanString(ua.Name)
	ua.Section = core.CleanString(ua.Section)
}

type ChangePassword struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,max=72"`
}

// UpdateProfile is what a user may change on their own account.
type UpdateProfile struct {
	Name     *string `json:"name" validate:"omitempty,max=255"`
	PhotoURL *string `json:"photo_url"`
}

// GetFilter selects a single user. The first non-empty field wins: ID, Username, StudentID.
type GetFilter struct {
	ID        int
	Username  string // case-insensitive
	StudentID string // case-insensitive
}

type QueryFilter struct {
	Roles   []string
	Section string // case/whitespace-insensitive
	Status  string
	Search  string // matches username or name
}

// StudentLink is the account linked to a student record.
type StudentLink struct {
	StudentID string
	UserID    int // 0 when the student has no account
	FullName  string
	Email     string
	Section   string
}
