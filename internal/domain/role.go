package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Role is the side of a conversation a participant is on. The two
// implementations carry every role-dependent field choice so callers never
// branch on the role themselves.
type Role interface {
	String() string
	// ParticipantID returns this side's identifier on c
	ParticipantID(c *Conversation) uuid.UUID
	// UnreadCount returns this side's unread counter on c
	UnreadCount(c *Conversation) int
	// SetUnread overwrites this side's unread counter on c
	SetUnread(c *Conversation, n int)
	// Counterpart returns the other side
	Counterpart() Role
	// ParticipantField and UnreadField name the persisted columns for this side
	ParticipantField() string
	UnreadField() string
	// FallbackName is shown when the participant record cannot be resolved
	FallbackName() string
}

type touristRole struct{}

type providerRole struct{}

var (
	Tourist  Role = touristRole{}
	Provider Role = providerRole{}
)

func (touristRole) String() string {
	return "tourist"
}

func (touristRole) ParticipantID(c *Conversation) uuid.UUID {
	return c.TouristID
}

func (touristRole) UnreadCount(c *Conversation) int {
	return c.TouristUnread
}

func (touristRole) SetUnread(c *Conversation, n int) {
	c.TouristUnread = n
}

func (touristRole) Counterpart() Role {
	return Provider
}

func (touristRole) ParticipantField() string {
	return "tourist_id"
}

func (touristRole) UnreadField() string {
	return "tourist_unread"
}

func (touristRole) FallbackName() string {
	return UnknownUser
}

func (providerRole) String() string {
	return "provider"
}

func (providerRole) ParticipantID(c *Conversation) uuid.UUID {
	return c.ProviderID
}

func (providerRole) UnreadCount(c *Conversation) int {
	return c.ProviderUnread
}

func (providerRole) SetUnread(c *Conversation, n int) {
	c.ProviderUnread = n
}

func (providerRole) Counterpart() Role {
	return Tourist
}

func (providerRole) ParticipantField() string {
	return "provider_id"
}

func (providerRole) UnreadField() string {
	return "provider_unread"
}

func (providerRole) FallbackName() string {
	return UnknownProvider
}

// ParseRole maps a role name ("tourist", "provider") to its Role
func ParseRole(name string) (Role, error) {
	switch name {
	case "tourist":
		return Tourist, nil
	case "provider":
		return Provider, nil
	}
	return nil, fmt.Errorf("unknown role %q", name)
}

// RoleOf returns the side participantID occupies on c. The tourist side is
// checked first.
func RoleOf(c *Conversation, participantID uuid.UUID) (Role, bool) {
	if c == nil {
		return nil, false
	}
	for _, r := range []Role{Tourist, Provider} {
		if r.ParticipantID(c) == participantID {
			return r, true
		}
	}
	return nil, false
}
