package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// Conn is a live push connection.
type Conn interface {
	// Read blocks until the next message arrives or the connection fails.
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens push connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Clock schedules delayed calls. Tests inject a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// maxMessageSize bounds a single inbound message; full session snapshots can be large.
const maxMessageSize = 1 << 20

// WebsocketDialer dials the event endpoint over websocket.
type WebsocketDialer struct {
	HTTPClient *http.Client
	Header     http.Header
}

func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient: d.HTTPClient,
		HTTPHeader: d.Header,
	})
	if err != nil {
		return nil, err
	}
	c.SetReadLimit(maxMessageSize)
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	return data, err
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "client closed")
}
