package summary

import (
	"context"
	"fmt"

	"github.com/clinicq/clinicq/internal/domain/reservation"
	"github.com/clinicq/clinicq/internal/domain/schedule"
	"github.com/clinicq/clinicq/internal/domain/status"
)

// ReservationLister is satisfied by *reservation.Service.
type ReservationLister interface {
	List(ctx context.Context, f reservation.ListFilter) ([]*reservation.Reservation, int, error)
}

// ScheduleLister is satisfied by *schedule.Service.
type ScheduleLister interface {
	AvailableSchedules(ctx context.Context, polyID int64, date string) ([]*schedule.Schedule, error)
}

type Service struct {
	reservations ReservationLister
	schedules    ScheduleLister
	catalog      *status.Catalog
	today        func() string
}

func NewService(reservations ReservationLister, schedules ScheduleLister, catalog *status.Catalog, today func() string) *Service {
	return &Service{reservations: reservations, schedules: schedules, catalog: catalog, today: today}
}

// Summary loads the day's reservations and schedules and aggregates them.
// An empty date means today. A scheduleID that is not available on date
// yields schedule.ErrNotFound.
func (s *Service) Summary(ctx context.Context, date string, polyID, scheduleID int64) (Summary, error) {
	if date == "" {
		date = s.today()
	}
	items, _, err := s.reservations.List(ctx, reservation.ListFilter{Date: date})
	if err != nil {
		return Summary{}, err
	}
	scheds, err := s.schedules.AvailableSchedules(ctx, polyID, date)
	if err != nil {
		return Summary{}, fmt.Errorf("list schedules: %w", err)
	}

	in := Input{PolyID: polyID, ScheduleID: scheduleID, Schedules: scheds, Catalog: s.catalog}
	in.Items = make([]Item, 0, len(items))
	for _, r := range items {
		in.Items = append(in.Items, Item{PolyID: r.PolyID, ScheduleID: r.ScheduleID, Status: r.Status})
	}

	out := Summarize(in)
	if scheduleID != 0 && out.QuotaInfo == nil {
		return Summary{}, fmt.Errorf("schedule %d on %s: %w", scheduleID, date, schedule.ErrNotFound)
	}
	return out, nil
}
