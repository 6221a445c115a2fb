// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes used by the event stream.
const (
	// StatusEventBusLost means the server lost its bus subscription; clients should reconnect.
	StatusEventBusLost websocket.StatusCode = 3000
)
