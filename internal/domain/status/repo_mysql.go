package status

import (
	"context"
	"database/sql"

	"github.com/clinicq/clinicq/internal/platform/db"
)

type repoMySQL struct{ db *sql.DB }

func NewRepoMySQL(sqlDB *sql.DB) Repository { return &repoMySQL{db: sqlDB} }

func (r *repoMySQL) List(ctx context.Context) ([]*Status, error) {
	rows, err := db.SQLConn(ctx, r.db).QueryContext(ctx, `SELECT id, status_name, label FROM statuses ORDER BY id`)
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
