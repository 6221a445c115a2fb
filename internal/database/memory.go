package database

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/velada/internal/game"
	"github.com/jason-s-yu/velada/internal/models"
)

// MemoryURL selects MemoryStore in place of Postgres.
const MemoryURL = "memory://"

// MemoryStore keeps sessions and players in memory only. It honours the same contract as
// Store and is meant for local runs and tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.Session
	players  map[uuid.UUID]models.Player
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[uuid.UUID]*models.Session),
		players:  make(map[uuid.UUID]models.Player),
	}
}

func (m *MemoryStore) GetSession(_ context.Context, id uuid.UUID) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, game.ErrNotFound)
	}
	return s.Clone(), nil
}

func (m *MemoryStore) SaveSession(_ context.Context, s *models.Session) (uuid.UUID, error) {
	saved := s.Clone()
	if saved.ID == uuid.Nil {
		saved.ID = uuid.New()
	}
	if saved.Status == "" {
		saved.Status = models.StatusDraft
	}
	if !saved.Status.Valid() {
		return uuid.Nil, fmt.Errorf("save session: unknown status %q: %w", saved.Status, game.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	last := game.NextTableNumber(saved) - 1
	saved.Active = false
	if prev, ok := m.sessions[saved.ID]; ok {
		saved.Active = prev.Active
		if prev.LastTableNumber > last {
			last = prev.LastTableNumber
		}
	}
	saved.LastTableNumber = last
	sort.SliceStable(saved.Tables, func(i, j int) bool {
		return saved.Tables[i].Number < saved.Tables[j].Number
	})
	m.sessions[saved.ID] = saved
	return saved.ID, nil
}

func (m *MemoryStore) UpdateSessionStatus(_ context.Context, id uuid.UUID, status models.Status) (*models.Session, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("update status: unknown status %q: %w", status, game.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, game.ErrNotFound)
	}
	s.Status = status
	s.Active = status == models.StatusInProgress
	return s.Clone(), nil
}

func (m *MemoryStore) AddTable(_ context.Context, sessionID uuid.UUID, table models.Table) (*models.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, game.ErrNotFound)
	}
	next, err := game.AddTable(s, table)
	if err != nil {
		return nil, err
	}
	m.sessions[sessionID] = next
	added := next.Tables[len(next.Tables)-1].Clone()
	return &added, nil
}

func (m *MemoryStore) SaveTable(_ context.Context, sessionID uuid.UUID, table models.Table) (*models.Table, error) {
	if err := game.ValidateTable(table); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, game.ErrNotFound)
	}
	if err := game.EnsureOpen(s.Status); err != nil {
		return nil, err
	}
	idx := s.FindTable(table.ID)
	if idx < 0 {
		return nil, fmt.Errorf("table %s: %w", table.ID, game.ErrNotFound)
	}
	saved := table.Clone()
	saved.Number = s.Tables[idx].Number
	s.Tables[idx] = saved
	out := saved.Clone()
	return &out, nil
}

func (m *MemoryStore) ListSessionsLight(_ context.Context, filter models.SessionFilter) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Session
	for _, s := range m.sessions {
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.From != nil && s.Date.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !s.Date.Before(*filter.To) {
			continue
		}
		light := *s
		light.Tables = nil
		out = append(out, light)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) GetActiveSession(_ context.Context) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var active *models.Session
	for _, s := range m.sessions {
		if s.Active && (active == nil || s.Date.After(active.Date)) {
			active = s
		}
	}
	return active.Clone(), nil
}

func (m *MemoryStore) GetRoster(_ context.Context) ([]models.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Player, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) SavePlayer(_ context.Context, p *models.Player) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players[p.ID] = *p
	return nil
}
