package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/velada/internal/auth"
	"github.com/jason-s-yu/velada/internal/cache"
	"github.com/jason-s-yu/velada/internal/database"
	"github.com/jason-s-yu/velada/internal/game"
	"github.com/jason-s-yu/velada/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 10, 21, 0, 0, 0, time.UTC)

type testServer struct {
	api    *APIServer
	store  *database.MemoryStore
	bus    *cache.LocalBus
	router http.Handler
	clock  time.Time
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	keys, err := auth.NewKeys(time.Hour)
	require.NoError(t, err)

	ts := &testServer{
		store: database.NewMemoryStore(),
		bus:   cache.NewLocalBus(),
		clock: t0,
	}
	ts.api = &APIServer{
		Store:          ts.store,
		Events:         ts.bus,
		Keys:           keys,
		Logger:         quietLogger(),
		OriginPatterns: []string{"*"},
		Now:            func() time.Time { return ts.clock },
	}
	ts.router = NewRouter(ts.api, []string{"*"})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// seedSession stores an in-progress session with one table and returns it.
func (ts *testServer) seedSession(t *testing.T) *models.Session {
	t.Helper()
	ctx := context.Background()
	id, err := ts.store.SaveSession(ctx, &models.Session{Date: t0, Status: models.StatusInProgress})
	require.NoError(t, err)
	_, err = ts.store.AddTable(ctx, id, models.Table{Pairs: [2]models.Pair{
		{Players: [2]uuid.UUID{uuid.New(), uuid.New()}},
		{Players: [2]uuid.UUID{uuid.New(), uuid.New()}},
	}})
	require.NoError(t, err)
	s, err := ts.store.GetSession(ctx, id)
	require.NoError(t, err)
	return s
}

func TestGetGame(t *testing.T) {
	ts := newTestServer(t)
	s := ts.seedSession(t)

	w := ts.do(t, http.MethodGet, "/games/"+s.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[models.Session](t, w)
	assert.Equal(t, s.ID, got.ID)
	require.Len(t, got.Tables, 1)

	w = ts.do(t, http.MethodGet, "/games/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/games/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	s := ts.seedSession(t)
	table := s.Tables[0]
	base := "/games/" + s.ID.String() + "/tables/" + table.ID.String()

	w := ts.do(t, http.MethodPost, base+"/hands", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// a second open hand is a rule violation
	w = ts.do(t, http.MethodPost, base+"/hands", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, game.RuleHandAlreadyOpen, decode[errorBody](t, w).Rule)

	ts.clock = t0.Add(125 * time.Second)
	w = ts.do(t, http.MethodPost, base+"/rounds", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[models.Table](t, w)
	assert.Equal(t, 1, got.Round)
	require.Len(t, got.History, 1)
	assert.Equal(t, 125, *got.History[0].DurationSeconds)
	assert.Equal(t, 0, got.Pairs[0].Score)

	w = ts.do(t, http.MethodPost, base+"/hands", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodPost, base+"/hands/score", scoreRequest{PairID: table.Pairs[0].ID, Points: 40})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 40, decode[models.Table](t, w).Pairs[0].Score)

	stored, err := ts.store.GetSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, stored.Tables[0].Pairs[0].Score)

	w = ts.do(t, http.MethodPost, "/games/"+s.ID.String()+"/tables/"+uuid.NewString()+"/rounds", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddTableOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	s := ts.seedSession(t)
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	bad := models.Table{Pairs: [2]models.Pair{
		{Players: [2]uuid.UUID{a, b}},
		{Players: [2]uuid.UUID{a, c}},
	}}
	w := ts.do(t, http.MethodPost, "/games/"+s.ID.String()+"/tables", bad)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, game.RuleDuplicatePlayer, decode[errorBody](t, w).Rule)

	good := models.Table{Pairs: [2]models.Pair{
		{Players: [2]uuid.UUID{a, b}},
		{Players: [2]uuid.UUID{c, uuid.New()}},
	}}
	w = ts.do(t, http.MethodPost, "/games/"+s.ID.String()+"/tables", good)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 2, decode[models.Table](t, w).Number)
}

func TestChangeStatusOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	s := ts.seedSession(t)
	path := "/games/" + s.ID.String() + "/status"

	w := ts.do(t, http.MethodPost, path, statusRequest{Status: "paused"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, game.RuleUnknownStatus, decode[errorBody](t, w).Rule)

	w = ts.do(t, http.MethodPost, path, statusRequest{Status: models.StatusInProgress})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/games/active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, s.ID, decode[models.Session](t, w).ID)

	w = ts.do(t, http.MethodPost, path, statusRequest{Status: models.StatusFinished})
	require.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodGet, "/games/active", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListGames(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSession(t)
	_, err := ts.store.SaveSession(context.Background(), &models.Session{Date: t0.Add(-24 * time.Hour), Status: models.StatusDraft})
	require.NoError(t, err)

	w := ts.do(t, http.MethodGet, "/games", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Session](t, w), 2)

	w = ts.do(t, http.MethodGet, "/games?status=draft", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]models.Session](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, models.StatusDraft, list[0].Status)

	w = ts.do(t, http.MethodGet, "/games?status=paused", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodGet, "/games?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSaveGameUsesPathID(t *testing.T) {
	ts := newTestServer(t)
	id := uuid.New()

	w := ts.do(t, http.MethodPut, "/games/"+id.String(), models.Session{ID: uuid.New(), Date: t0, Summary: "sábado"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[models.Session](t, w)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, models.StatusDraft, got.Status)
}

func TestPlayers(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/players", models.Player{Name: "Ana"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = ts.do(t, http.MethodPost, "/players", models.Player{})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = ts.do(t, http.MethodGet, "/players", nil)
	require.Equal(t, http.StatusOK, w.Code)
	roster := decode[[]models.Player](t, w)
	require.Len(t, roster, 1)
	assert.Equal(t, "Ana", roster[0].Name)
}

func TestBadBody(t *testing.T) {
	ts := newTestServer(t)
	s := ts.seedSession(t)

	req := httptest.NewRequest(http.MethodPost, "/games/"+s.ID.String()+"/tables", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPingAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	ts.do(t, http.MethodGet, "/players", nil)
	w = ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "velada_http_requests_total")
}

func TestSaveTableOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	s := ts.seedSession(t)
	table := s.Tables[0].Clone()
	path := "/games/" + s.ID.String() + "/tables/" + table.ID.String()

	added, err := ts.store.AddTable(context.Background(), s.ID, models.Table{Pairs: [2]models.Pair{
		{Players: [2]uuid.UUID{uuid.New(), uuid.New()}},
		{Players: [2]uuid.UUID{uuid.New(), uuid.New()}},
	}})
	require.NoError(t, err)
	sub, err := ts.bus.Subscribe(context.Background(), s.ID)
	require.NoError(t, err)
	defer sub.Close()

	table.Pairs[1].Score = 70
	w := ts.do(t, http.MethodPut, path, table)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 70, decode[models.Table](t, w).Pairs[1].Score)

	stored, err := ts.store.GetSession(context.Background(), s.ID)
	require.NoError(t, err)
	require.Len(t, stored.Tables, 2)
	assert.Equal(t, added.ID, stored.Tables[1].ID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	data, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(data), "TABLE_UPDATED")

	_, err = ts.store.UpdateSessionStatus(context.Background(), s.ID, models.StatusFinished)
	require.NoError(t, err)
	w = ts.do(t, http.MethodPut, path, table)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, game.RuleSessionClosed, decode[errorBody](t, w).Rule)
}
