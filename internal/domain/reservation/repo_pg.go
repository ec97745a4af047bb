package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicq/clinicq/internal/domain/schedule"
	"github.com/clinicq/clinicq/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *repoPG) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

func (r *repoPG) LockPoly(ctx context.Context, polyID int64) error {
	var id int64
	err := r.conn(ctx).QueryRow(ctx, `SELECT id FROM polies WHERE id = $1 FOR UPDATE`, polyID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("poly %d: %w", polyID, schedule.ErrNotFound)
	}
	return err
}

func (r *repoPG) LockSchedule(ctx context.Context, scheduleID int64) (*schedule.Schedule, error) {
	var s schedule.Schedule
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT s.id, s.doctor_id, d.name, d.poly_id, s.date::text,
			s.start_time::text, s.end_time::text, s.quota
		FROM schedules s JOIN doctors d ON d.id = s.doctor_id
		WHERE s.id = $1
		FOR UPDATE OF s`, scheduleID).
		Scan(&s.ID, &s.DoctorID, &s.DoctorName, &s.PolyID, &s.Date, &s.StartTime, &s.EndTime, &s.Quota)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("schedule %d: %w", scheduleID, schedule.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) CountBySchedule(ctx context.Context, scheduleID int64) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM reservations WHERE schedule_id = $1`, scheduleID).Scan(&n)
	return n, err
}

func (r *repoPG) NextQueueNumber(ctx context.Context, polyID int64, date string) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(MAX(q.queue_number), 0) + 1
		FROM queues q JOIN reservations r ON r.id = q.reservation_id
		WHERE r.poly_id = $1 AND r.queue_date = $2::date`, polyID, date).Scan(&n)
	return n, err
}

func (r *repoPG) Insert(ctx context.Context, res *Reservation) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO reservations (patient_id, poly_id, schedule_id, status_id, bpjs, queue_date)
		VALUES ($1, $2, $3, $4, $5, $6::date)
		RETURNING id, created_at`,
		res.PatientID, res.PolyID, res.ScheduleID, res.StatusID, res.BPJS, res.QueueDate).
		Scan(&res.ID, &res.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO queues (reservation_id, queue_number, number_of_calls)
		VALUES ($1, $2, $3)
		RETURNING id`,
		res.ID, res.Queue.QueueNumber, res.Queue.NumberOfCalls).Scan(&res.Queue.ID)
	if err != nil {
		return fmt.Errorf("insert queue: %w", err)
	}
	return nil
}

const reservationSelectPG = `SELECT r.id, r.patient_id, r.poly_id, p.name, r.schedule_id, r.status_id,
	r.bpjs, r.queue_date::text, r.created_at,
	q.id, q.queue_number, q.number_of_calls, q.call_time, q.re_reservation_time
	FROM reservations r
	JOIN polies p ON p.id = r.poly_id
	LEFT JOIN queues q ON q.reservation_id = r.id`

func scanReservationPG(row pgx.Row) (*Reservation, error) {
	var res Reservation
	var qID *int64
	var qNumber, qCalls *int
	var callTime, reTime *time.Time
	err := row.Scan(&res.ID, &res.PatientID, &res.PolyID, &res.PolyName, &res.ScheduleID, &res.StatusID,
		&res.BPJS, &res.QueueDate, &res.CreatedAt,
		&qID, &qNumber, &qCalls, &callTime, &reTime)
	if err != nil {
		return nil, err
	}
	if qID != nil {
		res.Queue = &Queue{ID: *qID, CallTime: callTime, ReReservationTime: reTime}
		if qNumber != nil {
			res.Queue.QueueNumber = *qNumber
		}
		if qCalls != nil {
			res.Queue.NumberOfCalls = *qCalls
		}
	}
	return &res, nil
}

func (r *repoPG) Get(ctx context.Context, id int64, forUpdate bool) (*Reservation, error) {
	query := reservationSelectPG + ` WHERE r.id = $1`
	if forUpdate {
		query += ` FOR UPDATE OF r`
	}
	res, err := scanReservationPG(r.conn(ctx).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}

func (r *repoPG) NextInStatus(ctx context.Context, polyID int64, date string, statusID int64) (*Reservation, error) {
	res, err := scanReservationPG(r.conn(ctx).QueryRow(ctx, reservationSelectPG+`
		WHERE r.poly_id = $1 AND r.queue_date = $2::date AND r.status_id = $3 AND q.id IS NOT NULL
		ORDER BY q.queue_number, r.id
		LIMIT 1
		FOR UPDATE OF r SKIP LOCKED`, polyID, date, statusID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return res, err
}

func (r *repoPG) Update(ctx context.Context, res *Reservation) error {
	if _, err := r.conn(ctx).Exec(ctx, `UPDATE reservations SET status_id = $2 WHERE id = $1`, res.ID, res.StatusID); err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}
	if res.Queue == nil {
		return nil
	}
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE queues SET number_of_calls = $2, call_time = $3, re_reservation_time = $4
		WHERE id = $1`,
		res.Queue.ID, res.Queue.NumberOfCalls, res.Queue.CallTime, res.Queue.ReReservationTime)
	if err != nil {
		return fmt.Errorf("update queue: %w", err)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter) ([]*Reservation, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Date != "" {
		where += fmt.Sprintf(` AND r.queue_date = $%d::date`, idx)
		args = append(args, f.Date)
		idx++
	}
	if f.PolyID != 0 {
		where += fmt.Sprintf(` AND r.poly_id = $%d`, idx)
		args = append(args, f.PolyID)
		idx++
	}
	if f.StatusID != 0 {
		where += fmt.Sprintf(` AND r.status_id = $%d`, idx)
		args = append(args, f.StatusID)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM reservations r`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := reservationSelectPG + where + ` ORDER BY r.queue_date, q.queue_number, r.id`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Reservation
	for rows.Next() {
		res, err := scanReservationPG(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, res)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListPolyNames(ctx context.Context) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT name FROM polies ORDER BY name`)
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

func (r *repoPG) Called(ctx context.Context, date string, statusIDs []int64) ([]Called, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT p.name, r.status_id, q.queue_number, q.call_time
		FROM reservations r
		JOIN polies p ON p.id = r.poly_id
		JOIN queues q ON q.reservation_id = r.id
		WHERE r.queue_date = $1::date AND r.status_id = ANY($2)`, date, statusIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Called
	for rows.Next() {
		var c Called
		if err := rows.Scan(&c.PolyName, &c.StatusID, &c.QueueNumber, &c.CallTime); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
