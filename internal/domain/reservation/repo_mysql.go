package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clinicq/clinicq/internal/domain/schedule"
	"github.com/clinicq/clinicq/internal/platform/db"
)

type repoMySQL struct{ db *sql.DB }

func NewRepoMySQL(sqlDB *sql.DB) Repository { return &repoMySQL{db: sqlDB} }

func (r *repoMySQL) conn(ctx context.Context) db.SQLQuerier { return db.SQLConn(ctx, r.db) }

func (r *repoMySQL) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithSQLTx(ctx, r.db, fn)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *repoMySQL) LockPoly(ctx context.Context, polyID int64) error {
	var id int64
	err := r.conn(ctx).QueryRowContext(ctx, `SELECT id FROM polies WHERE id = ? FOR UPDATE`, polyID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("poly %d: %w", polyID, schedule.ErrNotFound)
	}
	return err
}

func (r *repoMySQL) LockSchedule(ctx context.Context, scheduleID int64) (*schedule.Schedule, error) {
	var s schedule.Schedule
	var quota sql.NullInt64
	err := r.conn(ctx).QueryRowContext(ctx, `
		SELECT s.id, s.doctor_id, d.name, d.poly_id, DATE_FORMAT(s.date, '%Y-%m-%d'),
			TIME_FORMAT(s.start_time, '%H:%i:%s'), TIME_FORMAT(s.end_time, '%H:%i:%s'), s.quota
		FROM schedules s JOIN doctors d ON d.id = s.doctor_id
		WHERE s.id = ?
		FOR UPDATE`, scheduleID).
		Scan(&s.ID, &s.DoctorID, &s.DoctorName, &s.PolyID, &s.Date, &s.StartTime, &s.EndTime, &quota)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule %d: %w", scheduleID, schedule.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if quota.Valid {
		q := int(quota.Int64)
		s.Quota = &q
	}
	return &s, nil
}

func (r *repoMySQL) CountBySchedule(ctx context.Context, scheduleID int64) (int, error) {
	var n int
	err := r.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM reservations WHERE schedule_id = ?`, scheduleID).Scan(&n)
	return n, err
}

func (r *repoMySQL) NextQueueNumber(ctx context.Context, polyID int64, date string) (int, error) {
	var n int
	err := r.conn(ctx).QueryRowContext(ctx, `
		SELECT COALESCE(MAX(q.queue_number), 0) + 1
		FROM queues q JOIN reservations r ON r.id = q.reservation_id
		WHERE r.poly_id = ? AND r.queue_date = ?`, polyID, date).Scan(&n)
	return n, err
}

func (r *repoMySQL) Insert(ctx context.Context, res *Reservation) error {
	result, err := r.conn(ctx).ExecContext(ctx, `
		INSERT INTO reservations (patient_id, poly_id, schedule_id, status_id, bpjs, queue_date)
		VALUES (?, ?, ?, ?, ?, ?)`,
		res.PatientID, res.PolyID, res.ScheduleID, res.StatusID, res.BPJS, res.QueueDate)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	if res.ID, err = result.LastInsertId(); err != nil {
		return err
	}
	err = r.conn(ctx).QueryRowContext(ctx, `SELECT created_at FROM reservations WHERE id = ?`, res.ID).Scan(&res.CreatedAt)
	if err != nil {
		return err
	}

	result, err = r.conn(ctx).ExecContext(ctx, `
		INSERT INTO queues (reservation_id, queue_number, number_of_calls) VALUES (?, ?, ?)`,
		res.ID, res.Queue.QueueNumber, res.Queue.NumberOfCalls)
	if err != nil {
		return fmt.Errorf("insert queue: %w", err)
	}
	res.Queue.ID, err = result.LastInsertId()
	return err
}

const reservationSelectMySQL = `SELECT r.id, r.patient_id, r.poly_id, p.name, r.schedule_id, r.status_id,
	r.bpjs, DATE_FORMAT(r.queue_date, '%Y-%m-%d'), r.created_at,
	q.id, q.queue_number, q.number_of_calls, q.call_time, q.re_reservation_time
	FROM reservations r
	JOIN polies p ON p.id = r.poly_id
	LEFT JOIN queues q ON q.reservation_id = r.id`

func scanReservationSQL(row scanner) (*Reservation, error) {
	var res Reservation
	var qID sql.NullInt64
	var qNumber, qCalls sql.NullInt64
	var callTime, reTime sql.NullTime
	err := row.Scan(&res.ID, &res.PatientID, &res.PolyID, &res.PolyName, &res.ScheduleID, &res.StatusID,
		&res.BPJS, &res.QueueDate, &res.CreatedAt,
		&qID, &qNumber, &qCalls, &callTime, &reTime)
	if err != nil {
		return nil, err
	}
	if qID.Valid {
		res.Queue = &Queue{
			ID:            qID.Int64,
			QueueNumber:   int(qNumber.Int64),
			NumberOfCalls: int(qCalls.Int64),
		}
		if callTime.Valid {
			t := callTime.Time
			res.Queue.CallTime = &t
		}
		if reTime.Valid {
			t := reTime.Time
			res.Queue.ReReservationTime = &t
		}
	}
	return &res, nil
}

func (r *repoMySQL) Get(ctx context.Context, id int64, forUpdate bool) (*Reservation, error) {
	query := reservationSelectMySQL + ` WHERE r.id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	res, err := scanReservationSQL(r.conn(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}

func (r *repoMySQL) NextInStatus(ctx context.Context, polyID int64, date string, statusID int64) (*Reservation, error) {
	res, err := scanReservationSQL(r.conn(ctx).QueryRowContext(ctx, reservationSelectMySQL+`
		WHERE r.poly_id = ? AND r.queue_date = ? AND r.status_id = ? AND q.id IS NOT NULL
		ORDER BY q.queue_number, r.id
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, polyID, date, statusID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return res, err
}

func (r *repoMySQL) Update(ctx context.Context, res *Reservation) error {
	if _, err := r.conn(ctx).ExecContext(ctx, `UPDATE reservations SET status_id = ? WHERE id = ?`, res.StatusID, res.ID); err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}
	if res.Queue == nil {
		return nil
	}
	_, err := r.conn(ctx).ExecContext(ctx, `
		UPDATE queues SET number_of_calls = ?, call_time = ?, re_reservation_time = ?
		WHERE id = ?`,
		res.Queue.NumberOfCalls, nullTime(res.Queue.CallTime), nullTime(res.Queue.ReReservationTime), res.Queue.ID)
	if err != nil {
		return fmt.Errorf("update queue: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (r *repoMySQL) List(ctx context.Context, f ListFilter) ([]*Reservation, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}

	if f.Date != "" {
		where += ` AND r.queue_date = ?`
		args = append(args, f.Date)
	}
	if f.PolyID != 0 {
		where += ` AND r.poly_id = ?`
		args = append(args, f.PolyID)
	}
	if f.StatusID != 0 {
		where += ` AND r.status_id = ?`
		args = append(args, f.StatusID)
	}

	var total int
	if err := r.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM reservations r`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := reservationSelectMySQL + where + ` ORDER BY r.queue_date, q.queue_number, r.id`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Reservation
	for rows.Next() {
		res, err := scanReservationSQL(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, res)
	}
	return items, total, rows.Err()
}

func (r *repoMySQL) ListPolyNames(ctx context.Context) ([]string, error) {
	rows, err := r.conn(ctx).QueryContext(ctx, `SELECT name FROM polies ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (r *repoMySQL) Called(ctx context.Context, date string, statusIDs []int64) ([]Called, error) {
	if len(statusIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statusIDs)), ",")
	args := []interface{}{date}
	for _, id := range statusIDs {
		args = append(args, id)
	}
	rows, err := r.conn(ctx).QueryContext(ctx, `
		SELECT p.name, r.status_id, q.queue_number, q.call_time
		FROM reservations r
		JOIN polies p ON p.id = r.poly_id
		JOIN queues q ON q.reservation_id = r.id
		WHERE r.queue_date = ? AND r.status_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Called
	for rows.Next() {
		var c Called
		var callTime sql.NullTime
		if err := rows.Scan(&c.PolyName, &c.StatusID, &c.QueueNumber, &callTime); err != nil {
			return nil, err
		}
		if callTime.Valid {
			t := callTime.Time
			c.CallTime = &t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
