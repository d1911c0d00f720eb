package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents user role in the interview platform.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleInterviewer Role = "interviewer"
	RoleCandidate   Role = "candidate"
)

// ParseRole maps a request value to a Role. Empty means candidate.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case "":
		return RoleCandidate, true
	case RoleAdmin, RoleInterviewer, RoleCandidate:
		return Role(s), true
	}
	return "", false
}

// IsObserver reports whether the role watches sessions instead of feeding them.
func (r Role) IsObserver() bool {
	return r == RoleAdmin || r == RoleInterviewer
}

// User represents a platform user.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}
