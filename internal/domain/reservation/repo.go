package reservation

import (
	"context"

	"github.com/clinicq/clinicq/internal/domain/schedule"
)

// Repository persists reservations and their queues. Methods called with
// the context handed to WithTx's fn run inside that transaction.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// LockPoly and LockSchedule take row locks held until the surrounding
	// transaction ends. They serialize queue numbering and quota checks.
	LockPoly(ctx context.Context, polyID int64) error
	LockSchedule(ctx context.Context, scheduleID int64) (*schedule.Schedule, error)
	CountBySchedule(ctx context.Context, scheduleID int64) (int, error)
	NextQueueNumber(ctx context.Context, polyID int64, date string) (int, error)
	Insert(ctx context.Context, r *Reservation) error

	// Get returns ErrNotFound for an unknown id. With forUpdate the row
	// stays locked until the transaction ends.
	Get(ctx context.Context, id int64, forUpdate bool) (*Reservation, error)
	// NextInStatus locks and returns the lowest queue number in statusID
	// for the poly and date, skipping rows other transactions hold. It
	// returns nil when nobody matches.
	NextInStatus(ctx context.Context, polyID int64, date string, statusID int64) (*Reservation, error)
	// Update writes the status and queue counters.
	Update(ctx context.Context, r *Reservation) error

	List(ctx context.Context, f ListFilter) ([]*Reservation, int, error)
	ListPolyNames(ctx context.Context) ([]string, error)
	Called(ctx context.Context, date string, statusIDs []int64) ([]Called, error)
}
