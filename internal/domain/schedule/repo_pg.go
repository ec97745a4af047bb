package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicq/clinicq/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func notFoundPG(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) ListPolies(ctx context.Context) ([]*Poly, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT id, name FROM polies ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Poly
	for rows.Next() {
		var p Poly
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, err
		}
		items = append(items, &p)
	}
	return items, rows.Err()
}

func (r *repoPG) GetPoly(ctx context.Context, id int64) (*Poly, error) {
	var p Poly
	err := r.conn(ctx).QueryRow(ctx, `SELECT id, name FROM polies WHERE id = $1`, id).Scan(&p.ID, &p.Name)
	if err != nil {
		return nil, notFoundPG(err)
	}
	return &p, nil
}

const doctorSelectPG = `SELECT d.id, d.name, d.poly_id, p.name FROM doctors d JOIN polies p ON p.id = d.poly_id`

func (r *repoPG) ListDoctors(ctx context.Context, polyID int64) ([]*Doctor, error) {
	query := doctorSelectPG
	var args []interface{}
	if polyID != 0 {
		query += ` WHERE d.poly_id = $1`
		args = append(args, polyID)
	}
	query += ` ORDER BY d.name, d.id`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		var d Doctor
		if err := rows.Scan(&d.ID, &d.Name, &d.PolyID, &d.PolyName); err != nil {
			return nil, err
		}
		items = append(items, &d)
	}
	return items, rows.Err()
}

func (r *repoPG) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	var d Doctor
	err := r.conn(ctx).QueryRow(ctx, doctorSelectPG+` WHERE d.id = $1`, id).
		Scan(&d.ID, &d.Name, &d.PolyID, &d.PolyName)
	if err != nil {
		return nil, notFoundPG(err)
	}
	return &d, nil
}

const scheduleSelectPG = `SELECT s.id, s.doctor_id, d.name, d.poly_id, s.date::text,
	s.start_time::text, s.end_time::text, s.quota
	FROM schedules s JOIN doctors d ON d.id = s.doctor_id`

func scanSchedulePG(row pgx.Row) (*Schedule, error) {
	var s Schedule
	err := row.Scan(&s.ID, &s.DoctorID, &s.DoctorName, &s.PolyID, &s.Date,
		&s.StartTime, &s.EndTime, &s.Quota)
	return &s, err
}

func (r *repoPG) Create(ctx context.Context, s *Schedule) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO schedules (doctor_id, date, start_time, end_time, quota)
		VALUES ($1, $2::date, $3::time, $4::time, $5)
		RETURNING id`,
		s.DoctorID, s.Date, s.StartTime, s.EndTime, s.Quota).Scan(&s.ID)
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Schedule, error) {
	s, err := scanSchedulePG(r.conn(ctx).QueryRow(ctx, scheduleSelectPG+` WHERE s.id = $1`, id))
	if err != nil {
		return nil, notFoundPG(err)
	}
	return s, nil
}

func (r *repoPG) List(ctx context.Context, f Filter) ([]*Schedule, error) {
	query := scheduleSelectPG + ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.DoctorID != 0 {
		query += fmt.Sprintf(` AND s.doctor_id = $%d`, idx)
		args = append(args, f.DoctorID)
		idx++
	}
	if f.PolyID != 0 {
		query += fmt.Sprintf(` AND d.poly_id = $%d`, idx)
		args = append(args, f.PolyID)
		idx++
	}
	if f.Month != 0 && f.Year != 0 {
		query += fmt.Sprintf(` AND EXTRACT(MONTH FROM s.date) = $%d AND EXTRACT(YEAR FROM s.date) = $%d`, idx, idx+1)
		args = append(args, f.Month, f.Year)
		idx += 2
	}
	if f.Date != "" {
		query += fmt.Sprintf(` AND s.date = $%d::date`, idx)
		args = append(args, f.Date)
	}
	query += ` ORDER BY s.date, s.start_time, s.id`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Schedule
	for rows.Next() {
		s, err := scanSchedulePG(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *repoPG) CountReservations(ctx context.Context, scheduleID int64) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM reservations WHERE schedule_id = $1`, scheduleID).Scan(&n)
	return n, err
}
