package event

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeUserRegistered Type = "user.registered"
	TypeUserLoggedIn   Type = "user.logged_in"
	TypeTokenRefreshed Type = "token.refreshed"
	TypeTokenRevoked   Type = "token.revoked"
	TypeRoleAssigned   Type = "role.assigned"
	TypeRoleRemoved    Type = "role.removed"
)

type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Payload   any    `json:"payload"`
	Timestamp string `json:"timestamp"`
	ActorID   string `json:"actor_id,omitempty"` // Who triggered the event
}

type UserPayload struct {
	UserID string `json:"user_id"`
	Login  string `json:"login"`
}

type RolePayload struct {
	UserID string `json:"user_id"`
	RoleID string `json:"role_id"`
	Role   string `json:"role"`
}

// New stamps an event with a fresh id and the current UTC time.
func New(t Type, actorID string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		ActorID:   actorID,
	}
}

type Publisher interface {
	Publish(e Event)
}

type Bus interface {
	Publisher
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}

// Discard drops every event. Used when no bus is configured.
type Discard struct{}

func (Discard) Publish(Event) {}
