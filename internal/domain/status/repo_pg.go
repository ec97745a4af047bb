package status

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicq/clinicq/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) List(ctx context.Context) ([]*Status, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id, status_name, label FROM statuses ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Status
	for rows.Next() {
		var s Status
		if err := rows.Scan(&s.ID, &s.StatusName, &s.Label); err != nil {
			return nil, err
		}
		items = append(items, &s)
	}
	return items, rows.Err()
}
