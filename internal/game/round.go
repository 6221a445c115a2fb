package game

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/velada/internal/models"
)

// StartNewRound begins a fresh scoring cycle on a table: the open hand (if any) is closed at now,
// this round's hands move to the table history, and both pair scores go back to 0.
func StartNewRound(session *models.Session, tableID uuid.UUID, now time.Time) (*models.Session, error) {
	next, t, err := editTable(session, tableID)
	if err != nil {
		return nil, err
	}

	if idx := t.OpenHand(); idx >= 0 {
		if err := closeHand(&t.Hands[idx], now); err != nil {
			return nil, err
		}
	}

	t.History = append(t.History, t.Hands...)
	t.Hands = nil
	t.Pairs[0].Score = 0
	t.Pairs[1].Score = 0
	t.Round++
	t.UpdatedAt = now
	return next, nil
}

// StartHand opens a new hand on a table. A table holds at most one open hand.
func StartHand(session *models.Session, tableID uuid.UUID, now time.Time) (*models.Session, error) {
	next, t, err := editTable(session, tableID)
	if err != nil {
		return nil, err
	}
	if t.Finished(next.HouseRules.GamesToWin()) {
		return nil, invalid(RuleTableFinished, "table %d is finished", t.Number)
	}
	if t.GameDecided(next.HouseRules.PointsToWinGame()) {
		return nil, invalid(RuleGameDecided, "table %d game is decided, start a new round", t.Number)
	}
	if t.OpenHand() >= 0 {
		return nil, invalid(RuleHandAlreadyOpen, "table %d already has an open hand", t.Number)
	}

	t.Hands = append(t.Hands, models.Hand{
		ID:        uuid.New(),
		Round:     t.Round,
		StartedAt: now,
	})
	t.UpdatedAt = now
	return next, nil
}

// ScoreHand closes the open hand crediting points to the given pair. The hand that takes the
// pair's score to the session's points per game wins the game; the table then waits for
// StartNewRound.
func ScoreHand(session *models.Session, tableID, pairID uuid.UUID, points int, now time.Time) (*models.Session, error) {
	if points <= 0 {
		return nil, invalid(RuleInvalidPoints, "points must be positive, got %d", points)
	}
	next, t, err := editTable(session, tableID)
	if err != nil {
		return nil, err
	}
	pi := t.PairIndex(pairID)
	if pi < 0 {
		return nil, notFound("pair", pairID)
	}
	target := next.HouseRules.PointsToWinGame()
	if t.GameDecided(target) {
		return nil, invalid(RuleGameDecided, "table %d game is decided, start a new round", t.Number)
	}
	hi := t.OpenHand()
	if hi < 0 {
		return nil, invalid(RuleNoOpenHand, "table %d has no open hand", t.Number)
	}

	hand := &t.Hands[hi]
	if err := closeHand(hand, now); err != nil {
		return nil, err
	}
	hand.Points[pi] = points

	pair := &t.Pairs[pi]
	before := pair.Score
	pair.Score += points
	if before < target && pair.Score >= target {
		pair.GamesWon++
	}
	t.UpdatedAt = now
	return next, nil
}

// editTable clones the session and returns a pointer to the table inside the clone.
func editTable(session *models.Session, tableID uuid.UUID) (*models.Session, *models.Table, error) {
	if session == nil {
		return nil, nil, ErrNotFound
	}
	if err := EnsureOpen(session.Status); err != nil {
		return nil, nil, err
	}
	idx := session.FindTable(tableID)
	if idx < 0 {
		return nil, nil, notFound("table", tableID)
	}
	next := session.Clone()
	return next, &next.Tables[idx], nil
}

// closeHand stamps the end time and the duration in whole seconds.
func closeHand(h *models.Hand, now time.Time) error {
	if now.Before(h.StartedAt) {
		return invalid(RuleHandEndBeforeStart, "hand cannot end before it started")
	}
	end := now
	seconds := int(now.Sub(h.StartedAt) / time.Second)
	h.EndedAt = &end
	h.DurationSeconds = &seconds
	return nil
}
