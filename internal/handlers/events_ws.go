// internal/handlers/events_ws.go
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/velada/internal/cache"
	"github.com/jason-s-yu/velada/internal/metrics"
	"github.com/jason-s-yu/velada/internal/middleware"
	"github.com/jason-s-yu/velada/internal/realtime"
)

const writeTimeout = 5 * time.Second

var errBusLost = errors.New("event subscription ended")

// EventsWSHandler streams a session's events to one websocket subscriber.
// The token travels in the query string. The subscriber receives READY once subscribed,
// PING while idle, and every domain event published for the session afterwards.
func (s *APIServer) EventsWSHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if _, err := s.Keys.AuthenticateJWT(r.URL.Query().Get(realtime.TokenParam)); err != nil {
		s.Logger.Debugf("event subscription rejected for %s: %v", sessionID, err)
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid token"})
		return
	}
	if _, err := s.Store.GetSession(r.Context(), sessionID); err != nil {
		s.writeError(w, r, err)
		return
	}

	// subscribe before accepting, so nothing published after READY is lost
	sub, err := s.Events.Subscribe(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer sub.Close()

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.OriginPatterns,
	})
	if err != nil {
		s.Logger.Warnf("WebSocket accept error for session %s: %v", sessionID, err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "internal server error")

	metrics.HubConnections.Inc()
	defer metrics.HubConnections.Dec()
	middleware.LogWebSocketConnect(s.Logger, r.RemoteAddr, r.URL.Path)

	// subscribers never send; CloseRead handles control frames and cancels ctx on close
	ctx := c.CloseRead(context.Background())

	err = s.streamEvents(ctx, c, sessionID, sub)
	middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, r.URL.Path, err)
	switch {
	case err == nil || ctx.Err() != nil:
		c.Close(websocket.StatusNormalClosure, "")
	case errors.Is(err, errBusLost):
		c.Close(StatusEventBusLost, errBusLost.Error())
	}
}

func (s *APIServer) streamEvents(ctx context.Context, c *websocket.Conn, sessionID uuid.UUID, sub cache.Subscription) error {
	if err := writeControl(ctx, c, realtime.KindReady, sessionID); err != nil {
		return err
	}

	msgs := make(chan []byte)
	subErr := make(chan error, 1)
	go func() {
		for {
			data, err := sub.Next(ctx)
			if err != nil {
				subErr <- err
				return
			}
			select {
			case msgs <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(s.pingInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-subErr:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %w", errBusLost, err)
		case <-ticker.C:
			if err := writeControl(ctx, c, realtime.KindPing, sessionID); err != nil {
				return err
			}
		case data := <-msgs:
			if err := writeMessage(ctx, c, data); err != nil {
				return err
			}
		}
	}
}

func writeControl(ctx context.Context, c *websocket.Conn, kind realtime.EventKind, sessionID uuid.UUID) error {
	data, err := realtime.Encode(kind, sessionID, nil)
	if err != nil {
		return err
	}
	return writeMessage(ctx, c, data)
}

func writeMessage(ctx context.Context, c *websocket.Conn, data []byte) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.Write(wctx, websocket.MessageText, data)
}
