package models

import "github.com/google/uuid"

// Player is a roster entry. The core only ever references players by ID.
type Player struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Nickname string    `json:"nickname,omitempty"`
}

// DisplayName returns the nickname when set, otherwise the name.
func (p Player) DisplayName() string {
	if p.Nickname != "" {
		return p.Nickname
	}
	return p.Name
}
