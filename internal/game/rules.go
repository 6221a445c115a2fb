// internal/game/rules.go
package game

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/velada/internal/models"
)

// AddTable validates a proposed table and appends it to a copy of the session with the next
// unused table number. The input session is never modified.
func AddTable(session *models.Session, proposed models.Table) (*models.Session, error) {
	if session == nil {
		return nil, ErrNotFound
	}
	if err := EnsureOpen(session.Status); err != nil {
		return nil, err
	}
	if err := ValidateTable(proposed); err != nil {
		return nil, err
	}

	next := session.Clone()
	table := proposed.Clone()
	if table.ID == uuid.Nil {
		table.ID = uuid.New()
	}
	for i := range table.Pairs {
		if table.Pairs[i].ID == uuid.Nil {
			table.Pairs[i].ID = uuid.New()
		}
	}
	table.Number = NextTableNumber(session)
	next.LastTableNumber = table.Number
	next.Tables = append(next.Tables, table)
	return next, nil
}

// EnsureOpen rejects changes to a finished or cancelled session.
func EnsureOpen(status models.Status) error {
	if status.Closed() {
		return invalid(RuleSessionClosed, "session is %s", status)
	}
	return nil
}

// ValidateTable checks that both pairs are complete and no player sits twice at the table.
func ValidateTable(t models.Table) error {
	seen := make(map[uuid.UUID]bool, 4)
	for i, pair := range t.Pairs {
		if !pair.Complete() {
			return invalid(RuleIncompletePair, "pair %d needs two players", i+1)
		}
		for _, id := range pair.Players {
			if seen[id] {
				return invalid(RuleDuplicatePlayer, "player %s appears more than once", id)
			}
			seen[id] = true
		}
	}
	return nil
}

// NextTableNumber returns the number the next table added to the session will get.
// It never hands out a number that was used before, even if that table is gone.
func NextTableNumber(session *models.Session) int {
	n := session.LastTableNumber
	for _, t := range session.Tables {
		if t.Number > n {
			n = t.Number
		}
	}
	return n + 1
}

// SelectedPlayers returns the players sitting at tables that are still being played.
// Players on finished tables are free to be seated again.
func SelectedPlayers(session *models.Session) map[uuid.UUID]bool {
	selected := make(map[uuid.UUID]bool)
	if session == nil {
		return selected
	}
	threshold := session.HouseRules.GamesToWin()
	for _, t := range session.Tables {
		if t.Finished(threshold) {
			continue
		}
		for _, id := range t.PlayerIDs() {
			selected[id] = true
		}
	}
	return selected
}

// ChangeStatus records the requested status on a copy of the session. Whether the
// transition is allowed is decided by the store.
func ChangeStatus(session *models.Session, status models.Status) (*models.Session, error) {
	if session == nil {
		return nil, ErrNotFound
	}
	if !status.Valid() {
		return nil, invalid(RuleUnknownStatus, "unknown status %q", status)
	}
	next := session.Clone()
	next.Status = status
	return next, nil
}
