package realtime

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// TokenParam is the query parameter carrying the access token.
const TokenParam = "token"

// EndpointURL resolves the configured base address into the session's event endpoint.
// A relative base is resolved against origin; http(s) schemes become ws(s).
func EndpointURL(base, origin string, sessionID uuid.UUID, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base address %q: %w", base, err)
	}
	if !u.IsAbs() {
		o, err := url.Parse(origin)
		if err != nil || !o.IsAbs() {
			return "", fmt.Errorf("relative base address %q needs an absolute origin, got %q", base, origin)
		}
		u = o.ResolveReference(u)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q in base address", u.Scheme)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/games/" + sessionID.String() + "/events"
	u.RawPath = ""
	q := u.Query()
	q.Set(TokenParam, token)
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String(), nil
}
