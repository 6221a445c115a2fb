package orchestrator

import (
	"github.com/jason-s-yu/velada/internal/models"
	"github.com/jason-s-yu/velada/internal/realtime"
)

// applyEvent folds a pushed event into a copy of the current session. It reports false when
// the event cannot be applied locally and the session must be re-read instead.
func applyEvent(current *models.Session, ev realtime.Event) (*models.Session, bool) {
	if current == nil {
		return nil, false
	}
	switch ev.Kind {
	case realtime.KindSessionUpdated:
		if ev.Session == nil || ev.Session.ID != current.ID {
			return nil, false
		}
		next := ev.Session.Clone()
		// the active flag is owned by the list query, not the push payload
		next.Active = current.Active
		return next, true

	case realtime.KindTableAdded, realtime.KindTableUpdated:
		if ev.Table == nil {
			return nil, false
		}
		next := current.Clone()
		table := ev.Table.Clone()
		if i := next.FindTable(table.ID); i >= 0 {
			next.Tables[i] = table
		} else {
			next.Tables = append(next.Tables, table)
		}
		if table.Number > next.LastTableNumber {
			next.LastTableNumber = table.Number
		}
		return next, true

	case realtime.KindStatusChanged:
		next := current.Clone()
		next.Status = ev.Status
		return next, true
	}
	return nil, false
}
