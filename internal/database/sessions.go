// internal/database/sessions.go
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/velada/internal/game"
	"github.com/jason-s-yu/velada/internal/models"
)

// defaultListLimit caps ListSessionsLight when the filter sets no limit.
const defaultListLimit = 50

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store persists sessions, their tables and the player roster in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const sessionColumns = `
	id, date, summary, location_name, location_address, status,
	win_threshold, points_per_game, last_table_number, is_active
`

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(
		&s.ID, &s.Date, &s.Summary,
		&s.Location.Name, &s.Location.Address,
		&s.Status,
		&s.HouseRules.WinThreshold, &s.HouseRules.PointsPerGame,
		&s.LastTableNumber, &s.Active,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSession returns the full session with its tables, or game.ErrNotFound.
func (st *Store) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return getSession(ctx, st.pool, id, false)
}

func getSession(ctx context.Context, q querier, id uuid.UUID, lock bool) (*models.Session, error) {
	sql := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	s, err := scanSession(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, game.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}

	tables, err := getTables(ctx, q, id)
	if err != nil {
		return nil, err
	}
	s.Tables = tables
	return s, nil
}

func getTables(ctx context.Context, q querier, sessionID uuid.UUID) ([]models.Table, error) {
	rows, err := q.Query(ctx, `
		SELECT id, number, pairs, round, hands, history, updated_at
		FROM session_tables
		WHERE session_id = $1
		ORDER BY number
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get tables of %s: %w", sessionID, err)
	}
	defer rows.Close()

	var tables []models.Table
	for rows.Next() {
		var (
			t                     models.Table
			pairs, hands, history []byte
		)
		if err := rows.Scan(&t.ID, &t.Number, &pairs, &t.Round, &hands, &history, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(pairs, &t.Pairs); err != nil {
			return nil, fmt.Errorf("table %s pairs: %w", t.ID, err)
		}
		if err := json.Unmarshal(hands, &t.Hands); err != nil {
			return nil, fmt.Errorf("table %s hands: %w", t.ID, err)
		}
		if err := json.Unmarshal(history, &t.History); err != nil {
			return nil, fmt.Errorf("table %s history: %w", t.ID, err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// SaveSession inserts or replaces a session and its tables. Tables missing from the
// session are removed. The active flag is not touched.
func (st *Store) SaveSession(ctx context.Context, s *models.Session) (uuid.UUID, error) {
	id := s.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	status := s.Status
	if status == "" {
		status = models.StatusDraft
	}
	if !status.Valid() {
		return uuid.Nil, fmt.Errorf("save session: unknown status %q: %w", status, game.ErrValidation)
	}
	last := game.NextTableNumber(s) - 1

	err := pgx.BeginTxFunc(ctx, st.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO sessions (
				id, date, summary, location_name, location_address, status,
				win_threshold, points_per_game, last_table_number
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				date = EXCLUDED.date,
				summary = EXCLUDED.summary,
				location_name = EXCLUDED.location_name,
				location_address = EXCLUDED.location_address,
				status = EXCLUDED.status,
				win_threshold = EXCLUDED.win_threshold,
				points_per_game = EXCLUDED.points_per_game,
				last_table_number = GREATEST(sessions.last_table_number, EXCLUDED.last_table_number)
		`,
			id, s.Date, s.Summary, s.Location.Name, s.Location.Address, status,
			s.HouseRules.GamesToWin(), s.HouseRules.PointsToWinGame(), last,
		)
		if err != nil {
			return err
		}

		keep := make([]string, 0, len(s.Tables))
		for _, t := range s.Tables {
			keep = append(keep, t.ID.String())
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM session_tables WHERE session_id = $1 AND NOT (id = ANY($2::uuid[]))`,
			id, keep,
		); err != nil {
			return err
		}

		for _, t := range s.Tables {
			if err := upsertTable(ctx, tx, id, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("save session %s: %w", id, err)
	}
	return id, nil
}

func upsertTable(ctx context.Context, tx pgx.Tx, sessionID uuid.UUID, t models.Table) error {
	pairs, err := json.Marshal(t.Pairs)
	if err != nil {
		return err
	}
	hands, err := json.Marshal(nonNil(t.Hands))
	if err != nil {
		return err
	}
	history, err := json.Marshal(nonNil(t.History))
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO session_tables (id, session_id, number, pairs, round, hands, history, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			number = EXCLUDED.number,
			pairs = EXCLUDED.pairs,
			round = EXCLUDED.round,
			hands = EXCLUDED.hands,
			history = EXCLUDED.history,
			updated_at = EXCLUDED.updated_at
	`, t.ID, sessionID, t.Number, pairs, t.Round, hands, history, t.UpdatedAt)
	return err
}

func nonNil(hands []models.Hand) []models.Hand {
	if hands == nil {
		return []models.Hand{}
	}
	return hands
}

// UpdateSessionStatus sets the status and returns the updated session. A session moved to
// in_progress becomes the active one; any other status clears the flag.
func (st *Store) UpdateSessionStatus(ctx context.Context, id uuid.UUID, status models.Status) (*models.Session, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("update status: unknown status %q: %w", status, game.ErrValidation)
	}
	tag, err := st.pool.Exec(ctx,
		`UPDATE sessions SET status = $2, is_active = $3 WHERE id = $1`,
		id, status, status == models.StatusInProgress,
	)
	if err != nil {
		return nil, fmt.Errorf("update status of %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("session %s: %w", id, game.ErrNotFound)
	}
	return st.GetSession(ctx, id)
}

// AddTable appends a table to the session under a row lock and assigns its number.
func (st *Store) AddTable(ctx context.Context, sessionID uuid.UUID, table models.Table) (*models.Table, error) {
	var added models.Table
	err := pgx.BeginTxFunc(ctx, st.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		s, err := getSession(ctx, tx, sessionID, true)
		if err != nil {
			return err
		}
		next, err := game.AddTable(s, table)
		if err != nil {
			return err
		}
		added = next.Tables[len(next.Tables)-1]
		if err := upsertTable(ctx, tx, sessionID, added); err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE sessions SET last_table_number = $2 WHERE id = $1`,
			sessionID, next.LastTableNumber,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("add table to %s: %w", sessionID, err)
	}
	return &added, nil
}

// SaveTable replaces the state of one existing table. Sibling tables, the session status and
// the table number are left alone. A finished or cancelled session rejects the write.
func (st *Store) SaveTable(ctx context.Context, sessionID uuid.UUID, table models.Table) (*models.Table, error) {
	if err := game.ValidateTable(table); err != nil {
		return nil, err
	}
	pairs, err := json.Marshal(table.Pairs)
	if err != nil {
		return nil, err
	}
	hands, err := json.Marshal(nonNil(table.Hands))
	if err != nil {
		return nil, err
	}
	history, err := json.Marshal(nonNil(table.History))
	if err != nil {
		return nil, err
	}

	saved := table.Clone()
	err = pgx.BeginTxFunc(ctx, st.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var status models.Status
		err := tx.QueryRow(ctx, `SELECT status FROM sessions WHERE id = $1 FOR SHARE`, sessionID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("session %s: %w", sessionID, game.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if err := game.EnsureOpen(status); err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			UPDATE session_tables
			SET pairs = $3, round = $4, hands = $5, history = $6, updated_at = $7
			WHERE id = $1 AND session_id = $2
			RETURNING number
		`, table.ID, sessionID, pairs, table.Round, hands, history, table.UpdatedAt).Scan(&saved.Number)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("table %s: %w", table.ID, game.ErrNotFound)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("save table %s: %w", table.ID, err)
	}
	return &saved, nil
}

// ListSessionsLight returns sessions without their tables, most recent first.
func (st *Store) ListSessionsLight(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, fmt.Sprintf("date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, fmt.Sprintf("date < $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	sql := `SELECT ` + sessionColumns + ` FROM sessions`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += fmt.Sprintf(` ORDER BY date DESC LIMIT $%d`, len(args))

	rows, err := st.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// GetActiveSession returns the active session, or nil when none is marked active.
func (st *Store) GetActiveSession(ctx context.Context) (*models.Session, error) {
	var id uuid.UUID
	err := st.pool.QueryRow(ctx,
		`SELECT id FROM sessions WHERE is_active ORDER BY date DESC LIMIT 1`,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active session: %w", err)
	}
	return st.GetSession(ctx, id)
}
