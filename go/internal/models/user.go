package models

import (
	"strings"

	"github.com/google/uuid"
)

// Role defines what a caller may see and do.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleObserver Role = "OBSERVER"
	RoleSurvivor Role = "SURVIVOR"
)

// User is the caller identity resolved from a session token. Users are not stored here.
type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Role     Role      `json:"role"`
}

// IsAdmin reports whether the user may create rounds.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// IsObserver reports whether the user's score is hidden from responses.
func (u User) IsObserver() bool { return u.Role == RoleObserver }

// RoleFromUsername derives a role when the token does not carry one.
func RoleFromUsername(username string) Role {
	switch strings.ToLower(strings.TrimSpace(username)) {
	case "admin":
		return RoleAdmin
	case "nikita":
		return RoleObserver
	default:
		return RoleSurvivor
	}
}
