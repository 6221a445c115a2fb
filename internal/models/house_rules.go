// internal/models/house_rules.go
package models

const (
	// DefaultWinThreshold is the number of games a pair must win to finish a table.
	DefaultWinThreshold = 2

	// DefaultPointsPerGame is the score a pair must reach to win a single game.
	DefaultPointsPerGame = 200
)

// HouseRules captures the scoring configuration of a session.
type HouseRules struct {
	// WinThreshold is how many games a pair must win before the table is finished (0 => default).
	WinThreshold int `json:"win_threshold"`

	// PointsPerGame is the score that wins a single game at a table (0 => default).
	PointsPerGame int `json:"points_per_game"`
}

// GamesToWin returns the configured win threshold or DefaultWinThreshold.
func (h HouseRules) GamesToWin() int {
	if h.WinThreshold <= 0 {
		return DefaultWinThreshold
	}
	return h.WinThreshold
}

// PointsToWinGame returns the configured points per game or DefaultPointsPerGame.
func (h HouseRules) PointsToWinGame() int {
	if h.PointsPerGame <= 0 {
		return DefaultPointsPerGame
	}
	return h.PointsPerGame
}
