package models

import (
	"time"

	"github.com/google/uuid"
)

// Pair is two players sharing a score within a table.
type Pair struct {
	ID      uuid.UUID    `json:"id"`
	Players [2]uuid.UUID `json:"players"`

	// Score is the running score of the current game; reset when a new round starts.
	Score int `json:"score"`

	// GamesWon counts games won at this table across rounds.
	GamesWon int `json:"games_won"`
}

// Complete reports whether both player slots are filled.
func (p Pair) Complete() bool {
	return p.Players[0] != uuid.Nil && p.Players[1] != uuid.Nil
}

// Hand is one scored game at a table.
type Hand struct {
	ID        uuid.UUID  `json:"id"`
	Round     int        `json:"round"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	// DurationSeconds is only set once the hand is closed.
	DurationSeconds *int `json:"duration_seconds,omitempty"`

	// Points holds the per-pair point deltas, indexed like Table.Pairs.
	Points [2]int `json:"points"`
}

// Open reports whether the hand has not been closed yet.
func (h Hand) Open() bool {
	return h.EndedAt == nil
}

// Table is a domino table with exactly two pairs.
type Table struct {
	ID     uuid.UUID `json:"id"`
	Number int       `json:"number"`
	Pairs  [2]Pair   `json:"pairs"`

	// Round is the current scoring cycle; Hands holds only this round's hands.
	Round int    `json:"round"`
	Hands []Hand `json:"hands,omitempty"`

	// History keeps the closed hands of previous rounds.
	History []Hand `json:"history,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Finished reports whether either pair has reached the win threshold.
func (t Table) Finished(threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultWinThreshold
	}
	return t.Pairs[0].GamesWon >= threshold || t.Pairs[1].GamesWon >= threshold
}

// GameDecided reports whether a pair's current score has reached the points that win a game.
func (t Table) GameDecided(pointsPerGame int) bool {
	if pointsPerGame <= 0 {
		pointsPerGame = DefaultPointsPerGame
	}
	return t.Pairs[0].Score >= pointsPerGame || t.Pairs[1].Score >= pointsPerGame
}

// Winner returns the index of the pair that finished the table, or -1.
func (t Table) Winner(threshold int) int {
	if !t.Finished(threshold) {
		return -1
	}
	if t.Pairs[0].GamesWon >= t.Pairs[1].GamesWon {
		return 0
	}
	return 1
}

// OpenHand returns the index of the open hand in Hands, or -1.
func (t Table) OpenHand() int {
	for i := len(t.Hands) - 1; i >= 0; i-- {
		if t.Hands[i].Open() {
			return i
		}
	}
	return -1
}

// PairIndex returns the position of the pair with the given id, or -1.
func (t Table) PairIndex(pairID uuid.UUID) int {
	for i := range t.Pairs {
		if t.Pairs[i].ID == pairID {
			return i
		}
	}
	return -1
}

// PlayerIDs lists the non-empty player slots of both pairs.
func (t Table) PlayerIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, 4)
	for _, p := range t.Pairs {
		for _, id := range p.Players {
			if id != uuid.Nil {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// Clone returns a deep copy of the table.
func (t Table) Clone() Table {
	c := t
	c.Hands = cloneHands(t.Hands)
	c.History = cloneHands(t.History)
	return c
}

func cloneHands(hands []Hand) []Hand {
	if hands == nil {
		return nil
	}
	out := make([]Hand, len(hands))
	for i, h := range hands {
		out[i] = h
		if h.EndedAt != nil {
			end := *h.EndedAt
			out[i].EndedAt = &end
		}
		if h.DurationSeconds != nil {
			d := *h.DurationSeconds
			out[i].DurationSeconds = &d
		}
	}
	return out
}
