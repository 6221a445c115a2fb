// internal/client/client.go
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/velada/internal/game"
	"github.com/jason-s-yu/velada/internal/models"
)

// Client talks to the velada API and satisfies the orchestrator's store contract.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// New returns a client for the API at baseURL. A nil httpClient uses a client with the
// given timeout.
func New(baseURL, token string, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
		token:   token,
	}
}

// apiError is the JSON error body returned by the API.
type apiError struct {
	Error string `json:"error"`
	Rule  string `json:"rule"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// decodeError turns an error response back into the domain error it came from.
func decodeError(resp *http.Response) error {
	var body apiError
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	if body.Error == "" {
		body.Error = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", body.Error, game.ErrNotFound)
	case http.StatusUnprocessableEntity:
		if body.Rule != "" {
			return &game.ValidationError{Rule: body.Rule, Message: body.Error}
		}
		return fmt.Errorf("%s: %w", body.Error, game.ErrValidation)
	default:
		return &StatusError{Code: resp.StatusCode, Message: body.Error}
	}
}

// StatusError is any non-domain failure reported by the API.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Code, e.Message)
}

func gamePath(id uuid.UUID, rest ...string) string {
	return "/games/" + id.String() + strings.Join(rest, "")
}

func (c *Client) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var s models.Session
	if err := c.do(ctx, http.MethodGet, gamePath(id), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) SaveSession(ctx context.Context, session *models.Session) (uuid.UUID, error) {
	id := session.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	var saved models.Session
	if err := c.do(ctx, http.MethodPut, gamePath(id), session, &saved); err != nil {
		return uuid.Nil, err
	}
	return saved.ID, nil
}

func (c *Client) UpdateSessionStatus(ctx context.Context, id uuid.UUID, status models.Status) (*models.Session, error) {
	var s models.Session
	req := struct {
		Status models.Status `json:"status"`
	}{status}
	if err := c.do(ctx, http.MethodPost, gamePath(id, "/status"), req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) AddTable(ctx context.Context, sessionID uuid.UUID, table models.Table) (*models.Table, error) {
	var t models.Table
	if err := c.do(ctx, http.MethodPost, gamePath(sessionID, "/tables"), table, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveTable replaces one table of the session, leaving its siblings and the status alone.
func (c *Client) SaveTable(ctx context.Context, sessionID uuid.UUID, table models.Table) (*models.Table, error) {
	var t models.Table
	if err := c.do(ctx, http.MethodPut, gamePath(sessionID, "/tables/"+table.ID.String()), table, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) ListSessionsLight(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	q := url.Values{}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.From != nil {
		q.Set("from", filter.From.Format(time.RFC3339))
	}
	if filter.To != nil {
		q.Set("to", filter.To.Format(time.RFC3339))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	path := "/games"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out []models.Session
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetActiveSession returns nil, nil when no session is active.
func (c *Client) GetActiveSession(ctx context.Context) (*models.Session, error) {
	var s models.Session
	err := c.do(ctx, http.MethodGet, "/games/active", nil, &s)
	if errors.Is(err, game.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) GetRoster(ctx context.Context) ([]models.Player, error) {
	var out []models.Player
	if err := c.do(ctx, http.MethodGet, "/players", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
