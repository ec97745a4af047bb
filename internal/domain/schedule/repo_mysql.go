package schedule

import (
	"context"
	"database/sql"
	"errors"

	"github.com/clinicq/clinicq/internal/platform/db"
)

type repoMySQL struct{ db *sql.DB }

func NewRepoMySQL(sqlDB *sql.DB) Repository { return &repoMySQL{db: sqlDB} }

func (r *repoMySQL) conn(ctx context.Context) db.SQLQuerier { return db.SQLConn(ctx, r.db) }

func notFoundSQL(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *repoMySQL) ListPolies(ctx context.Context) ([]*Poly, error) {
	rows, err := r.conn(ctx).QueryContext(ctx, `SELECT id, name FROM polies ORDER BY name, id`)
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

func (r *repoMySQL) GetPoly(ctx context.Context, id int64) (*Poly, error) {
	var p Poly
	err := r.conn(ctx).QueryRowContext(ctx, `SELECT id, name FROM polies WHERE id = ?`, id).Scan(&p.ID, &p.Name)
	if err != nil {
		return nil, notFoundSQL(err)
	}
	return &p, nil
}

const doctorSelectMySQL = `SELECT d.id, d.name, d.poly_id, p.name FROM doctors d JOIN polies p ON p.id = d.poly_id`

func (r *repoMySQL) ListDoctors(ctx context.Context, polyID int64) ([]*Doctor, error) {
	query := doctorSelectMySQL
	var args []interface{}
	if polyID != 0 {
		query += ` WHERE d.poly_id = ?`
		args = append(args, polyID)
	}
	query += ` ORDER BY d.name, d.id`

	rows, err := r.conn(ctx).QueryContext(ctx, query, args...)
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

func (r *repoMySQL) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	var d Doctor
	err := r.conn(ctx).QueryRowContext(ctx, doctorSelectMySQL+` WHERE d.id = ?`, id).
		Scan(&d.ID, &d.Name, &d.PolyID, &d.PolyName)
	if err != nil {
		return nil, notFoundSQL(err)
	}
	return &d, nil
}

const scheduleSelectMySQL = `SELECT s.id, s.doctor_id, d.name, d.poly_id, DATE_FORMAT(s.date, '%Y-%m-%d'),
	TIME_FORMAT(s.start_time, '%H:%i:%s'), TIME_FORMAT(s.end_time, '%H:%i:%s'), s.quota
	FROM schedules s JOIN doctors d ON d.id = s.doctor_id`

func scanScheduleSQL(row scanner) (*Schedule, error) {
	var s Schedule
	var quota sql.NullInt64
	err := row.Scan(&s.ID, &s.DoctorID, &s.DoctorName, &s.PolyID, &s.Date,
		&s.StartTime, &s.EndTime, &quota)
	if quota.Valid {
		q := int(quota.Int64)
		s.Quota = &q
	}
	return &s, err
}

func (r *repoMySQL) Create(ctx context.Context, s *Schedule) error {
	res, err := r.conn(ctx).ExecContext(ctx, `
		INSERT INTO schedules (doctor_id, date, start_time, end_time, quota)
		VALUES (?, ?, ?, ?, ?)`,
		s.DoctorID, s.Date, s.StartTime, s.EndTime, s.Quota)
	if err != nil {
		return err
	}
	s.ID, err = res.LastInsertId()
	return err
}

func (r *repoMySQL) GetByID(ctx context.Context, id int64) (*Schedule, error) {
	s, err := scanScheduleSQL(r.conn(ctx).QueryRowContext(ctx, scheduleSelectMySQL+` WHERE s.id = ?`, id))
	if err != nil {
		return nil, notFoundSQL(err)
	}
	return s, nil
}

func (r *repoMySQL) List(ctx context.Context, f Filter) ([]*Schedule, error) {
	query := scheduleSelectMySQL + ` WHERE 1=1`
	var args []interface{}

	if f.DoctorID != 0 {
		query += ` AND s.doctor_id = ?`
		args = append(args, f.DoctorID)
	}
	if f.PolyID != 0 {
		query += ` AND d.poly_id = ?`
		args = append(args, f.PolyID)
	}
	if f.Month != 0 && f.Year != 0 {
		query += ` AND MONTH(s.date) = ? AND YEAR(s.date) = ?`
		args = append(args, f.Month, f.Year)
	}
	if f.Date != "" {
		query += ` AND s.date = ?`
		args = append(args, f.Date)
	}
	query += ` ORDER BY s.date, s.start_time, s.id`

	rows, err := r.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Schedule
	for rows.Next() {
		s, err := scanScheduleSQL(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *repoMySQL) CountReservations(ctx context.Context, scheduleID int64) (int, error) {
	var n int
	err := r.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM reservations WHERE schedule_id = ?`, scheduleID).Scan(&n)
	return n, err
}
