package schedule

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrInvalid = errors.New("invalid schedule")

type Service struct {
	repo        Repository
	validate    *validator.Validate
	generalPoly string
}

func NewService(repo Repository, generalPoly string) *Service {
	return &Service{repo: repo, validate: NewValidator(), generalPoly: generalPoly}
}

// NewValidator returns a validator that reports json field names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ListPolies returns every poly with the general poly first.
func (s *Service) ListPolies(ctx context.Context) ([]*Poly, error) {
	items, err := s.repo.ListPolies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list polies: %w", err)
	}
	SortPolies(items, s.generalPoly)
	return items, nil
}

func (s *Service) GetPoly(ctx context.Context, id int64) (*Poly, error) {
	return s.repo.GetPoly(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, polyID int64) ([]*Doctor, error) {
	return s.repo.ListDoctors(ctx, polyID)
}

func (s *Service) CreateSchedule(ctx context.Context, req CreateRequest) (*Schedule, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	start, err := ParseClock(req.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%w: start_time: %v", ErrInvalid, err)
	}
	end, err := ParseClock(req.EndTime)
	if err != nil {
		return nil, fmt.Errorf("%w: end_time: %v", ErrInvalid, err)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: start_time must be before end_time", ErrInvalid)
	}

	doc, err := s.repo.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("doctor %d: %w", req.DoctorID, err)
	}

	sched := &Schedule{
		DoctorID:   doc.ID,
		DoctorName: doc.Name,
		PolyID:     doc.PolyID,
		Date:       req.Date,
		StartTime:  start.Format(ClockLayout),
		EndTime:    end.Format(ClockLayout),
		Quota:      req.Quota,
	}
	if err := s.repo.Create(ctx, sched); err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}
	return sched, nil
}

func (s *Service) GetSchedule(ctx context.Context, id int64) (*Schedule, error) {
	return s.repo.GetByID(ctx, id)
}

// ListSchedules returns matching schedules ordered by date and start time.
func (s *Service) ListSchedules(ctx context.Context, f Filter) ([]*Schedule, error) {
	if (f.Month == 0) != (f.Year == 0) {
		return nil, fmt.Errorf("%w: month and year must be given together", ErrInvalid)
	}
	if f.Month < 0 || f.Month > 12 {
		return nil, fmt.Errorf("%w: month out of range", ErrInvalid)
	}
	items, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	SortByStart(items)
	return items, nil
}

// AvailableSchedules lists the schedules of a poly's doctors on date.
func (s *Service) AvailableSchedules(ctx context.Context, polyID int64, date string) ([]*Schedule, error) {
	return s.ListSchedules(ctx, Filter{PolyID: polyID, Date: date})
}

// Quota reports the current occupancy of a schedule.
func (s *Service) Quota(ctx context.Context, id int64) (QuotaInfo, error) {
	sched, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return QuotaInfo{}, err
	}
	used, err := s.repo.CountReservations(ctx, id)
	if err != nil {
		return QuotaInfo{}, fmt.Errorf("count reservations: %w", err)
	}
	return QuotaFor(sched, used), nil
}
