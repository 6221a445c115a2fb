package orchestrator

import (
	"sort"

	"github.com/google/uuid"
	"github.com/jason-s-yu/velada/internal/models"
)

func rosterIndex(players []models.Player) map[uuid.UUID]models.Player {
	out := make(map[uuid.UUID]models.Player, len(players))
	for _, p := range players {
		out[p.ID] = p
	}
	return out
}

func sortPlayers(players []models.Player) {
	sort.Slice(players, func(i, j int) bool {
		return players[i].DisplayName() < players[j].DisplayName()
	})
}
