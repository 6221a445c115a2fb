// internal/realtime/events.go
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/velada/internal/models"
)

// EventKind is the "type" discriminator of a realtime message.
type EventKind string

const (
	// Control messages, consumed by the channel and never forwarded.
	KindPing  EventKind = "PING"
	KindReady EventKind = "READY"

	// Domain events.
	KindSessionUpdated EventKind = "SESSION_UPDATED"
	KindTableAdded     EventKind = "TABLE_ADDED"
	KindTableUpdated   EventKind = "TABLE_UPDATED"
	KindStatusChanged  EventKind = "STATUS_CHANGED"

	// KindUnknown marks a well-formed message with a type this client does not know.
	KindUnknown EventKind = "UNKNOWN"
)

// ErrMalformed is returned by Decode when a message fails structural decoding.
var ErrMalformed = errors.New("malformed realtime message")

// Message is the wire envelope shared by the server and the channel.
type Message struct {
	Type      string          `json:"type"`
	SessionID uuid.UUID       `json:"session_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// StatusPayload is the payload of a STATUS_CHANGED event.
type StatusPayload struct {
	Status models.Status `json:"status"`
}

// Event is a decoded inbound message. Exactly one of Session, Table or Status is set
// depending on Kind; Unknown events only carry Type and Raw.
type Event struct {
	Kind      EventKind
	Type      string
	SessionID uuid.UUID
	Session   *models.Session
	Table     *models.Table
	Status    models.Status
	Raw       json.RawMessage
}

// Control reports whether the event is a keep-alive or acknowledgement.
func (e Event) Control() bool {
	return e.Kind == KindPing || e.Kind == KindReady
}

// Decode parses one inbound message. Anything that cannot be trusted returns ErrMalformed.
func Decode(data []byte) (Event, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	ev := Event{
		Kind:      EventKind(msg.Type),
		Type:      msg.Type,
		SessionID: msg.SessionID,
	}

	switch ev.Kind {
	case KindPing, KindReady:
		return ev, nil

	case KindSessionUpdated:
		var s models.Session
		if err := decodePayload(msg, &s); err != nil {
			return Event{}, err
		}
		ev.Session = &s

	case KindTableAdded, KindTableUpdated:
		var t models.Table
		if err := decodePayload(msg, &t); err != nil {
			return Event{}, err
		}
		if t.ID == uuid.Nil {
			return Event{}, fmt.Errorf("%w: %s without table id", ErrMalformed, msg.Type)
		}
		ev.Table = &t

	case KindStatusChanged:
		var p StatusPayload
		if err := decodePayload(msg, &p); err != nil {
			return Event{}, err
		}
		if !p.Status.Valid() {
			return Event{}, fmt.Errorf("%w: unknown status %q", ErrMalformed, p.Status)
		}
		ev.Status = p.Status

	default:
		ev.Kind = KindUnknown
		ev.Raw = append(json.RawMessage(nil), data...)
	}
	return ev, nil
}

func decodePayload(msg Message, v interface{}) error {
	if len(msg.Payload) == 0 || string(msg.Payload) == "null" {
		return fmt.Errorf("%w: %s without payload", ErrMalformed, msg.Type)
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, msg.Type, err)
	}
	return nil
}

// Encode builds the wire form of an event. A nil payload is omitted.
func Encode(kind EventKind, sessionID uuid.UUID, payload interface{}) ([]byte, error) {
	msg := Message{Type: string(kind), SessionID: sessionID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
		}
		msg.Payload = raw
	}
	return json.Marshal(msg)
}
