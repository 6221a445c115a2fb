// internal/handlers/games.go
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/velada/internal/game"
	"github.com/jason-s-yu/velada/internal/models"
	"github.com/jason-s-yu/velada/internal/realtime"
)

// ListGamesHandler returns the light session list. Query: status, from, to (RFC 3339), limit.
func (s *APIServer) ListGamesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.SessionFilter{Status: models.Status(q.Get("status"))}
	if filter.Status != "" && !filter.Status.Valid() {
		badRequest(w, "invalid status")
		return
	}
	for _, bound := range []struct {
		key string
		dst **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		v := q.Get(bound.key)
		if v == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			badRequest(w, "invalid "+bound.key)
			return
		}
		*bound.dst = &ts
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(w, "invalid limit")
			return
		}
		filter.Limit = n
	}

	sessions, err := s.Store.ListSessionsLight(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// ActiveGameHandler returns the active session, or 404 when none is active.
func (s *APIServer) ActiveGameHandler(w http.ResponseWriter, r *http.Request) {
	session, err := s.Store.GetActiveSession(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if session == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no active session"})
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *APIServer) GetGameHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	session, err := s.Store.GetSession(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// SaveGameHandler replaces a whole session. The path id wins over the body id.
func (s *APIServer) SaveGameHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var session models.Session
	if !decodeBody(w, r, &session) {
		return
	}
	session.ID = id

	unlock := s.lock(id)
	defer unlock()

	if _, err := s.Store.SaveSession(r.Context(), &session); err != nil {
		s.writeError(w, r, err)
		return
	}
	saved, err := s.Store.GetSession(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.publish(r.Context(), realtime.KindSessionUpdated, id, saved)
	writeJSON(w, http.StatusOK, saved)
}

type statusRequest struct {
	Status models.Status `json:"status"`
}

func (s *APIServer) ChangeStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req statusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	unlock := s.lock(id)
	defer unlock()

	current, err := s.Store.GetSession(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := game.ChangeStatus(current, req.Status); err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, err := s.Store.UpdateSessionStatus(r.Context(), id, req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.publish(r.Context(), realtime.KindStatusChanged, id, realtime.StatusPayload{Status: updated.Status})
	writeJSON(w, http.StatusOK, updated)
}

// AddTableHandler validates the proposed table and appends it. The number is assigned here.
func (s *APIServer) AddTableHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var table models.Table
	if !decodeBody(w, r, &table) {
		return
	}

	unlock := s.lock(id)
	defer unlock()

	added, err := s.Store.AddTable(r.Context(), id, table)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.publish(r.Context(), realtime.KindTableAdded, id, added)
	writeJSON(w, http.StatusCreated, added)
}

// SaveTableHandler replaces the state of one table. The path ids win over the body.
func (s *APIServer) SaveTableHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	tableID, ok := pathUUID(w, r, "tableId")
	if !ok {
		return
	}
	var table models.Table
	if !decodeBody(w, r, &table) {
		return
	}
	table.ID = tableID

	unlock := s.lock(id)
	defer unlock()

	saved, err := s.Store.SaveTable(r.Context(), id, table)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.publish(r.Context(), realtime.KindTableUpdated, id, saved)
	writeJSON(w, http.StatusOK, saved)
}

func (s *APIServer) StartRoundHandler(w http.ResponseWriter, r *http.Request) {
	s.editTable(w, r, func(session *models.Session, tableID uuid.UUID) (*models.Session, error) {
		return game.StartNewRound(session, tableID, s.now())
	})
}

func (s *APIServer) StartHandHandler(w http.ResponseWriter, r *http.Request) {
	s.editTable(w, r, func(session *models.Session, tableID uuid.UUID) (*models.Session, error) {
		return game.StartHand(session, tableID, s.now())
	})
}

type scoreRequest struct {
	PairID uuid.UUID `json:"pair_id"`
	Points int       `json:"points"`
}

func (s *APIServer) ScoreHandHandler(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.editTable(w, r, func(session *models.Session, tableID uuid.UUID) (*models.Session, error) {
		return game.ScoreHand(session, tableID, req.PairID, req.Points, s.now())
	})
}

// editTable runs one engine operation on a table under the session lock, persists that table
// alone and publishes it.
func (s *APIServer) editTable(w http.ResponseWriter, r *http.Request, apply func(*models.Session, uuid.UUID) (*models.Session, error)) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	tableID, ok := pathUUID(w, r, "tableId")
	if !ok {
		return
	}

	unlock := s.lock(id)
	defer unlock()

	current, err := s.Store.GetSession(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	next, err := apply(current, tableID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	table, err := s.Store.SaveTable(r.Context(), id, next.Tables[next.FindTable(tableID)])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.publish(r.Context(), realtime.KindTableUpdated, id, table)
	writeJSON(w, http.StatusOK, table)
}

func (s *APIServer) ListPlayersHandler(w http.ResponseWriter, r *http.Request) {
	roster, err := s.Store.GetRoster(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if roster == nil {
		roster = []models.Player{}
	}
	writeJSON(w, http.StatusOK, roster)
}

func (s *APIServer) SavePlayerHandler(w http.ResponseWriter, r *http.Request) {
	var p models.Player
	if !decodeBody(w, r, &p) {
		return
	}
	if p.Name == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "name is required"})
		return
	}
	if err := s.Store.SavePlayer(r.Context(), &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}
