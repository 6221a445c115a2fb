package game

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/velada/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC)

// setupTestSession builds an in-progress session with one table [A,B] vs [C,D].
func setupTestSession(t *testing.T) (*models.Session, uuid.UUID) {
	t.Helper()
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	s := &models.Session{
		ID:     uuid.New(),
		Date:   t0,
		Status: models.StatusInProgress,
	}
	next, err := AddTable(s, newTable([2]uuid.UUID{a, b}, [2]uuid.UUID{c, d}))
	require.NoError(t, err)
	return next, next.Tables[0].ID
}

func newTable(p1, p2 [2]uuid.UUID) models.Table {
	return models.Table{
		Pairs: [2]models.Pair{
			{Players: p1},
			{Players: p2},
		},
	}
}

func TestStartNewRoundClosesOpenHand(t *testing.T) {
	s, tableID := setupTestSession(t)
	s, err := StartHand(s, tableID, t0)
	require.NoError(t, err)
	s.Tables[0].Pairs[0].Score = 80
	s.Tables[0].Pairs[1].Score = 45

	end := t0.Add(125 * time.Second)
	next, err := StartNewRound(s, tableID, end)
	require.NoError(t, err)

	tbl := next.Tables[0]
	require.Len(t, tbl.History, 1, "previous hand should be archived")
	assert.Empty(t, tbl.Hands, "active round should start empty")

	closed := tbl.History[0]
	require.NotNil(t, closed.EndedAt)
	assert.True(t, closed.EndedAt.Equal(end))
	require.NotNil(t, closed.DurationSeconds)
	assert.Equal(t, 125, *closed.DurationSeconds)

	assert.Equal(t, 0, tbl.Pairs[0].Score)
	assert.Equal(t, 0, tbl.Pairs[1].Score)
	assert.True(t, tbl.UpdatedAt.Equal(end))
	assert.Equal(t, 1, tbl.Round)

	// the input is left untouched
	assert.Nil(t, s.Tables[0].Hands[0].EndedAt)
	assert.Equal(t, 80, s.Tables[0].Pairs[0].Score)
}

func TestStartNewRoundFloorsDuration(t *testing.T) {
	s, tableID := setupTestSession(t)
	s, err := StartHand(s, tableID, t0)
	require.NoError(t, err)

	next, err := StartNewRound(s, tableID, t0.Add(61*time.Second+999*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 61, *next.Tables[0].History[0].DurationSeconds)
}

func TestStartNewRoundWithoutOpenHand(t *testing.T) {
	s, tableID := setupTestSession(t)
	next, err := StartNewRound(s, tableID, t0)
	require.NoError(t, err)
	assert.Empty(t, next.Tables[0].History)
	assert.Equal(t, 1, next.Tables[0].Round)
}

func TestStartNewRoundUnknownTable(t *testing.T) {
	s, _ := setupTestSession(t)
	_, err := StartNewRound(s, uuid.New(), t0)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStartNewRoundRejectsEndBeforeStart(t *testing.T) {
	s, tableID := setupTestSession(t)
	s, err := StartHand(s, tableID, t0)
	require.NoError(t, err)

	_, err = StartNewRound(s, tableID, t0.Add(-time.Second))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, RuleHandEndBeforeStart, verr.Rule)
}

func TestStartHandRejectsSecondOpenHand(t *testing.T) {
	s, tableID := setupTestSession(t)
	s, err := StartHand(s, tableID, t0)
	require.NoError(t, err)

	_, err = StartHand(s, tableID, t0.Add(time.Minute))
	require.ErrorIs(t, err, ErrValidation)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, RuleHandAlreadyOpen, verr.Rule)
}

func TestScoreHandWinsGame(t *testing.T) {
	s, tableID := setupTestSession(t)
	s.HouseRules.PointsPerGame = 100
	pairID := s.Tables[0].Pairs[1].ID

	s, err := StartHand(s, tableID, t0)
	require.NoError(t, err)
	s, err = ScoreHand(s, tableID, pairID, 60, t0.Add(3*time.Minute))
	require.NoError(t, err)

	tbl := s.Tables[0]
	assert.Equal(t, 60, tbl.Pairs[1].Score)
	assert.Equal(t, 0, tbl.Pairs[1].GamesWon)
	assert.Equal(t, [2]int{0, 60}, tbl.Hands[0].Points)
	assert.Equal(t, 180, *tbl.Hands[0].DurationSeconds)

	s, err = StartHand(s, tableID, t0.Add(4*time.Minute))
	require.NoError(t, err)
	s, err = ScoreHand(s, tableID, pairID, 45, t0.Add(6*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 105, s.Tables[0].Pairs[1].Score)
	assert.Equal(t, 1, s.Tables[0].Pairs[1].GamesWon)
}

func TestScoreHandErrors(t *testing.T) {
	s, tableID := setupTestSession(t)
	pairID := s.Tables[0].Pairs[0].ID

	_, err := ScoreHand(s, tableID, pairID, 10, t0)
	assert.ErrorIs(t, err, ErrValidation, "no open hand")

	s, err = StartHand(s, tableID, t0)
	require.NoError(t, err)

	_, err = ScoreHand(s, tableID, pairID, 0, t0)
	assert.ErrorIs(t, err, ErrValidation, "points must be positive")

	_, err = ScoreHand(s, tableID, uuid.New(), 10, t0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStartHandOnFinishedTable(t *testing.T) {
	s, tableID := setupTestSession(t)
	s.Tables[0].Pairs[0].GamesWon = models.DefaultWinThreshold

	_, err := StartHand(s, tableID, t0)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, RuleTableFinished, verr.Rule)
}

func TestMutationsRejectClosedSession(t *testing.T) {
	s, tableID := setupTestSession(t)
	s.Status = models.StatusFinished

	_, err := StartNewRound(s, tableID, t0)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = AddTable(s, newTable([2]uuid.UUID{uuid.New(), uuid.New()}, [2]uuid.UUID{uuid.New(), uuid.New()}))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestScoreHandAfterGameWon(t *testing.T) {
	s, tableID := setupTestSession(t)
	pairID := s.Tables[0].Pairs[0].ID

	s, err := StartHand(s, tableID, t0)
	require.NoError(t, err)
	s, err = ScoreHand(s, tableID, pairID, 200, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Tables[0].Pairs[0].GamesWon)

	// the decided game takes no more hands until the next round
	_, err = StartHand(s, tableID, t0.Add(2*time.Minute))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, RuleGameDecided, verr.Rule)

	s, err = StartNewRound(s, tableID, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, s.Tables[0].Pairs[0].Score)

	s, err = StartHand(s, tableID, t0.Add(3*time.Minute))
	require.NoError(t, err)
	s, err = ScoreHand(s, tableID, pairID, 5, t0.Add(4*time.Minute))
	require.NoError(t, err)

	tbl := s.Tables[0]
	assert.Equal(t, 5, tbl.Pairs[0].Score)
	assert.Equal(t, 1, tbl.Pairs[0].GamesWon, "a game is only won when the score crosses the target")
	assert.False(t, tbl.Finished(s.HouseRules.GamesToWin()))
}

func TestScoreHandRejectsDecidedGame(t *testing.T) {
	s, tableID := setupTestSession(t)
	s, err := StartHand(s, tableID, t0)
	require.NoError(t, err)
	// a hand left open on a table whose game was already won
	s.Tables[0].Pairs[1].Score = models.DefaultPointsPerGame

	_, err = ScoreHand(s, tableID, s.Tables[0].Pairs[1].ID, 30, t0.Add(time.Minute))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, RuleGameDecided, verr.Rule)
}
