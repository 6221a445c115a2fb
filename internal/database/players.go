package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/velada/internal/models"
)

// GetRoster returns every known player ordered by name.
func (st *Store) GetRoster(ctx context.Context) ([]models.Player, error) {
	rows, err := st.pool.Query(ctx, `SELECT id, name, nickname FROM players ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("get roster: %w", err)
	}
	defer rows.Close()

	var out []models.Player
	for rows.Next() {
		var p models.Player
		if err := rows.Scan(&p.ID, &p.Name, &p.Nickname); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SavePlayer inserts or renames a roster entry.
func (st *Store) SavePlayer(ctx context.Context, p *models.Player) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	q := `
		INSERT INTO players (id, name, nickname)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, nickname = EXCLUDED.nickname
	`
	return pgx.BeginTxFunc(ctx, st.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, p.ID, p.Name, p.Nickname)
		return err
	})
}
