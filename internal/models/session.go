// internal/models/session.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in_progress"
	StatusFinished   Status = "finished"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusInProgress, StatusFinished, StatusCancelled:
		return true
	}
	return false
}

// Closed reports whether a session in this status can no longer be mutated.
func (s Status) Closed() bool {
	return s == StatusFinished || s == StatusCancelled
}

// Location is where a session takes place.
type Location struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

// Session is one tournament night ("velada") holding several tables.
type Session struct {
	ID       uuid.UUID `json:"id"`
	Date     time.Time `json:"date"`
	Summary  string    `json:"summary,omitempty"`
	Location Location  `json:"location"`
	Status   Status    `json:"status"`
	Tables   []Table   `json:"tables,omitempty"`

	// HouseRules holds the games-to-win and points-per-game settings.
	// see internal/models/house_rules.go
	HouseRules HouseRules `json:"house_rules"`

	// LastTableNumber is the highest table number ever assigned in this session.
	// Numbers are never reused, even after a table is removed.
	LastTableNumber int `json:"last_table_number"`

	// Active is set by the store for the single session currently in play.
	Active bool `json:"active"`
}

// SessionFilter narrows ListSessionsLight results.
type SessionFilter struct {
	Status Status     `json:"status,omitempty"`
	From   *time.Time `json:"from,omitempty"`
	To     *time.Time `json:"to,omitempty"`
	Limit  int        `json:"limit,omitempty"`
}

// FindTable returns the index of the table with the given id, or -1.
func (s *Session) FindTable(tableID uuid.UUID) int {
	for i := range s.Tables {
		if s.Tables[i].ID == tableID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Tables != nil {
		c.Tables = make([]Table, len(s.Tables))
		for i := range s.Tables {
			c.Tables[i] = s.Tables[i].Clone()
		}
	}
	return &c
}
