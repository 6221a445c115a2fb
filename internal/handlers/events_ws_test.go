package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/velada/internal/cache"
	"github.com/jason-s-yu/velada/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readEvent(ctx context.Context, t *testing.T, c *websocket.Conn) realtime.Event {
	t.Helper()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	ev, err := realtime.Decode(data)
	require.NoError(t, err)
	return ev
}

func TestEventsStreamReadyThenDomainEvents(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()
	s := ts.seedSession(t)

	token, err := ts.api.Keys.CreateJWT("watcher")
	require.NoError(t, err)
	url, err := realtime.EndpointURL(srv.URL, "", s.ID, token)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	ready := readEvent(ctx, t, c)
	assert.Equal(t, realtime.KindReady, ready.Kind)
	assert.Equal(t, s.ID, ready.SessionID)

	resp, err := http.Post(srv.URL+"/games/"+s.ID.String()+"/tables/"+s.Tables[0].ID.String()+"/hands", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ev := readEvent(ctx, t, c)
	assert.Equal(t, realtime.KindTableUpdated, ev.Kind)
	require.NotNil(t, ev.Table)
	assert.Equal(t, s.Tables[0].ID, ev.Table.ID)
	assert.Equal(t, 0, ev.Table.OpenHand())
}

func TestEventsStreamPings(t *testing.T) {
	ts := newTestServer(t)
	ts.api.PingInterval = 20 * time.Millisecond
	srv := httptest.NewServer(ts.router)
	defer srv.Close()
	s := ts.seedSession(t)

	token, err := ts.api.Keys.CreateJWT("watcher")
	require.NoError(t, err)
	url, err := realtime.EndpointURL(srv.URL, "", s.ID, token)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	assert.Equal(t, realtime.KindReady, readEvent(ctx, t, c).Kind)
	assert.Equal(t, realtime.KindPing, readEvent(ctx, t, c).Kind)
}

func TestEventsRejectsBadToken(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()
	s := ts.seedSession(t)

	url, err := realtime.EndpointURL(srv.URL, "", s.ID, "not-a-jwt")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEventsUnknownSession(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	token, err := ts.api.Keys.CreateJWT("watcher")
	require.NoError(t, err)
	url, err := realtime.EndpointURL(srv.URL, "", uuid.New(), token)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type droppedSubscription struct{}

func (droppedSubscription) Next(context.Context) ([]byte, error) { return nil, cache.ErrSubscriptionClosed }
func (droppedSubscription) Close() error { return nil }

type droppingBus struct{}

func (droppingBus) Publish(context.Context, realtime.EventKind, uuid.UUID, any) error { return nil }
func (droppingBus) Subscribe(context.Context, uuid.UUID) (cache.Subscription, error) {
	return droppedSubscription{}, nil
}

func TestEventsStreamClosesWhenBusDrops(t *testing.T) {
	ts := newTestServer(t)
	ts.api.Events = droppingBus{}
	srv := httptest.NewServer(ts.router)
	defer srv.Close()
	s := ts.seedSession(t)

	token, err := ts.api.Keys.CreateJWT("watcher")
	require.NoError(t, err)
	url, err := realtime.EndpointURL(srv.URL, "", s.ID, token)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	assert.Equal(t, realtime.KindReady, readEvent(ctx, t, c).Kind)
	_, _, err = c.Read(ctx)
	assert.Equal(t, StatusEventBusLost, websocket.CloseStatus(err))
}
