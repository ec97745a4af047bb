package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/clinicq/clinicq/internal/domain/schedule"
	"github.com/clinicq/clinicq/internal/domain/status"
	"github.com/clinicq/clinicq/internal/platform/auth"
	"github.com/clinicq/clinicq/internal/platform/websocket"
	"github.com/clinicq/clinicq/internal/realtime"
)

// Station identifies a call station for CallNext.
type Station string

const (
	StationAnamnesa Station = "anamnesa"
	StationDoctor   Station = "doctor"
)

func ParseStation(s string) (Station, error) {
	switch st := Station(s); st {
	case StationAnamnesa, StationDoctor:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown station %q", ErrInvalid, s)
}

// waiting is the status a station calls patients from and action the
// transition it applies.
func (s Station) waiting() (status.Name, Action) {
	if s == StationDoctor {
		return status.WaitingDoctor, ActionWithDoctor
	}
	return status.Waiting, ActionAnamnesa
}

var actionRoles = map[Action][]string{
	ActionCall:          {auth.RoleNurse, auth.RoleDoctor},
	ActionAnamnesa:      {auth.RoleNurse},
	ActionWaitingDoctor: {auth.RoleNurse},
	ActionWithDoctor:    {auth.RoleDoctor},
	ActionDone:          {auth.RoleDoctor},
	ActionNoShow:        {auth.RoleNurse, auth.RoleDoctor, auth.RoleReceptionist},
	ActionCancelled:     {auth.RoleReceptionist},
}

type Service struct {
	repo      Repository
	catalog   *status.Catalog
	policy    Policy
	publisher websocket.EventPublisher
	validate  *validator.Validate
	loc       *time.Location
	now       func() time.Time
	logger    zerolog.Logger
}

// NewService wires the state machine to storage. publisher may be nil, in
// which case no snapshots are broadcast.
func NewService(repo Repository, catalog *status.Catalog, policy Policy, publisher websocket.EventPublisher, loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		repo:      repo,
		catalog:   catalog,
		policy:    policy,
		publisher: publisher,
		validate:  schedule.NewValidator(),
		loc:       loc,
		now:       time.Now,
		logger:    logger.With().Str("component", "reservation").Logger(),
	}
}

// Today returns the clinic's current date.
func (s *Service) Today() string {
	return s.now().In(s.loc).Format(schedule.DateLayout)
}

// Register books a patient on a schedule. The poly and schedule rows are
// locked for the duration so the queue number and quota check cannot race
// with another registration. A full schedule yields *schedule.QuotaError.
func (s *Service) Register(ctx context.Context, sess *auth.Session, req RegisterRequest) (*Reservation, error) {
	if err := sess.Require(auth.RoleReceptionist); err != nil {
		return nil, err
	}
	if !sess.CanActOnPoly(req.PolyID) {
		return nil, fmt.Errorf("%w: poly %d", auth.ErrForbidden, req.PolyID)
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	waitingID, err := s.catalog.Resolve(status.Waiting)
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	var res *Reservation
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockPoly(ctx, req.PolyID); err != nil {
			return err
		}
		sched, err := s.repo.LockSchedule(ctx, req.ScheduleID)
		if err != nil {
			return err
		}
		if sched.PolyID != req.PolyID {
			return fmt.Errorf("%w: schedule %d does not belong to poly %d", ErrInvalid, sched.ID, req.PolyID)
		}
		used, err := s.repo.CountBySchedule(ctx, sched.ID)
		if err != nil {
			return fmt.Errorf("count reservations: %w", err)
		}
		if err := schedule.CheckQuota(sched, used); err != nil {
			return err
		}
		number, err := s.repo.NextQueueNumber(ctx, req.PolyID, sched.Date)
		if err != nil {
			return fmt.Errorf("next queue number: %w", err)
		}

		res = &Reservation{
			PatientID:  req.PatientID,
			PolyID:     req.PolyID,
			ScheduleID: sched.ID,
			StatusID:   waitingID,
			Status:     status.Waiting,
			BPJS:       req.BPJS,
			QueueDate:  sched.Date,
			Queue:      &Queue{QueueNumber: number},
		}
		return s.repo.Insert(ctx, res)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("reservation_id", res.ID).
		Int64("poly_id", res.PolyID).
		Int64("schedule_id", res.ScheduleID).
		Int("queue_number", res.Queue.QueueNumber).
		Str("user_id", sess.UserID).
		Msg("reservation registered")
	s.publish(ctx)
	return res, nil
}

// Transition applies action to a reservation. The row is locked for the
// read-modify-write, so of two stations racing on the same reservation the
// loser gets a *TransitionError carrying the winner's status.
func (s *Service) Transition(ctx context.Context, sess *auth.Session, id int64, action Action) (*Result, error) {
	if err := s.authorize(sess, action); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	var result *Result
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		res, err := s.repo.Get(ctx, id, true)
		if err != nil {
			return err
		}
		if !sess.CanActOnPoly(res.PolyID) {
			return fmt.Errorf("%w: poly %d", auth.ErrForbidden, res.PolyID)
		}
		result, err = s.apply(ctx, res, action)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logResult(sess, result)
	s.publish(ctx)
	return result, nil
}

// CallNext calls the lowest waiting queue number of a poly at a station.
func (s *Service) CallNext(ctx context.Context, sess *auth.Session, polyID int64, station Station) (*Result, error) {
	waiting, action := station.waiting()
	if err := s.authorize(sess, action); err != nil {
		return nil, err
	}
	if !sess.CanActOnPoly(polyID) {
		return nil, fmt.Errorf("%w: poly %d", auth.ErrForbidden, polyID)
	}
	waitingID, err := s.catalog.Resolve(waiting)
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	today := s.Today()
	var result *Result
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		res, err := s.repo.NextInStatus(ctx, polyID, today, waitingID)
		if err != nil {
			return err
		}
		if res == nil {
			return fmt.Errorf("%w: poly %d at %s", ErrNoneWaiting, polyID, station)
		}
		result, err = s.apply(ctx, res, action)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logResult(sess, result)
	s.publish(ctx)
	return result, nil
}

func (s *Service) authorize(sess *auth.Session, action Action) error {
	roles, ok := actionRoles[action]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return sess.Require(roles...)
}

// apply runs the state machine on a locked reservation and persists the
// outcome. It must be called inside a transaction.
func (s *Service) apply(ctx context.Context, res *Reservation, action Action) (*Result, error) {
	current, err := s.catalog.Name(res.StatusID)
	if err != nil {
		return nil, err
	}
	res.Status = current
	if res.Queue == nil {
		return nil, fmt.Errorf("%w: reservation %d", ErrMissingOperationalData, res.ID)
	}

	out, err := s.policy.Apply(action, current, res.Queue.NumberOfCalls)
	if err != nil {
		return nil, err
	}
	toID, err := s.catalog.Resolve(out.To)
	if err != nil {
		return nil, err
	}

	res.StatusID = toID
	res.Status = out.To
	res.Queue.NumberOfCalls = out.NumberOfCalls
	if out.Called {
		now := s.now()
		res.Queue.CallTime = &now
	}
	if err := s.repo.Update(ctx, res); err != nil {
		return nil, err
	}
	return &Result{Reservation: res, Action: action, From: out.From, To: out.To, AutoNoShow: out.AutoNoShow}, nil
}

func (s *Service) logResult(sess *auth.Session, r *Result) {
	ev := s.logger.Info()
	if r.AutoNoShow {
		ev = s.logger.Warn()
	}
	ev.Int64("reservation_id", r.Reservation.ID).
		Str("action", string(r.Action)).
		Str("from", string(r.From)).
		Str("to", string(r.To)).
		Int("number_of_calls", r.Reservation.Queue.NumberOfCalls).
		Bool("auto_no_show", r.AutoNoShow).
		Str("user_id", sess.UserID).
		Msg("reservation transitioned")
}

// Get returns one reservation with its status name resolved.
func (s *Service) Get(ctx context.Context, id int64) (*Reservation, error) {
	res, err := s.repo.Get(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if err := s.resolveNames(res); err != nil {
		return nil, err
	}
	return res, nil
}

// List returns reservations matching f and the total count ignoring paging.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*Reservation, int, error) {
	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list reservations: %w", err)
	}
	for _, r := range items {
		if err := s.resolveNames(r); err != nil {
			return nil, 0, err
		}
	}
	return items, total, nil
}

func (s *Service) resolveNames(r *Reservation) error {
	name, err := s.catalog.Name(r.StatusID)
	if err != nil {
		return err
	}
	r.Status = name
	return nil
}

// Snapshot computes today's queue status for every poly.
func (s *Service) Snapshot(ctx context.Context) (realtime.Snapshot, error) {
	anamnesaID, err := s.catalog.Resolve(status.Anamnesa)
	if err != nil {
		return nil, err
	}
	withDoctorID, err := s.catalog.Resolve(status.WithDoctor)
	if err != nil {
		return nil, err
	}
	polies, err := s.repo.ListPolyNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list polies: %w", err)
	}
	called, err := s.repo.Called(ctx, s.Today(), []int64{anamnesaID, withDoctorID})
	if err != nil {
		return nil, fmt.Errorf("list called reservations: %w", err)
	}
	return BuildSnapshot(polies, called, anamnesaID, withDoctorID), nil
}

// Publish broadcasts the current snapshot. Failures are logged only: the
// transition that triggered it has already committed.
func (s *Service) Publish(ctx context.Context) {
	s.publish(ctx)
}

func (s *Service) publish(ctx context.Context) {
	if s.publisher == nil {
		return
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("build queue status snapshot")
		return
	}
	ev, err := websocket.NewEvent(realtime.Topic, realtime.EventQueueStatus, snap)
	if err != nil {
		s.logger.Error().Err(err).Msg("encode queue status snapshot")
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Error().Err(err).Msg("publish queue status snapshot")
	}
}
