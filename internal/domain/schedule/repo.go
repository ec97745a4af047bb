package schedule

import "context"

type Repository interface {
	ListPolies(ctx context.Context) ([]*Poly, error)
	GetPoly(ctx context.Context, id int64) (*Poly, error)
	ListDoctors(ctx context.Context, polyID int64) ([]*Doctor, error)
	GetDoctor(ctx context.Context, id int64) (*Doctor, error)

	Create(ctx context.Context, s *Schedule) error
	GetByID(ctx context.Context, id int64) (*Schedule, error)
	List(ctx context.Context, f Filter) ([]*Schedule, error)

	// CountReservations returns how many reservations reference the schedule.
	CountReservations(ctx context.Context, scheduleID int64) (int, error)
}
