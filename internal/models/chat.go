package models

import "time"

// Chat message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ValidRole reports whether role belongs to the allowed set.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ChatSession groups an ordered conversation. The session key is the
// opaque external identifier; the integer id stays internal.
type ChatSession struct {
	ID              int64
	SessionKey      string
	Name            *string
	CreatedByUserID *int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ChatMessage is one turn in a session, totally ordered by CreatedAt with
// the insertion id as tie-break.
type ChatMessage struct {
	ID        int64
	SessionID int64
	Role      string
	Content   string
	CreatedAt time.Time
}
