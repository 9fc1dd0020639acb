package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is the authorization tier of an account.
type Role string

const (
	RoleUser      Role = "user"
	RoleWriter    Role = "writer"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

var (
	AdminRoles     = []Role{RoleAdmin}
	ModeratorRoles = []Role{RoleModerator, RoleAdmin}
	WriterRoles    = []Role{RoleWriter, RoleModerator, RoleAdmin}
)

// ParseRole returns the role for a raw value or ErrInvalidInput.
func ParseRole(raw string) (Role, error) {
	switch r := Role(raw); r {
	case RoleUser, RoleWriter, RoleModerator, RoleAdmin:
		return r, nil
	default:
		return "", ErrInvalidInput
	}
}

// In reports whether the role is a member of the allowed set.
func (r Role) In(allowed ...Role) bool {
	for _, a := range allowed {
		if r == a {
			return true
		}
	}
	return false
}

// User is the account aggregate. Health data lives in HealthProfile.
type User struct {
	UserID        uuid.UUID
	Email         string
	DisplayName   string
	PasswordHash  string
	Role          Role
	EmailVerified bool
	IsActive      bool
	ReferredBy    string
	DeletedAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Session models a login session; tokens reference it so logout can revoke them.
type Session struct {
	SessionID      uuid.UUID
	UserID         uuid.UUID
	IPAddress      string
	UserAgent      string
	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
	RevokedAt      *time.Time
}
