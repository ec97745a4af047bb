package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/clinicq/clinicq/internal/domain/schedule"
	"github.com/clinicq/clinicq/internal/domain/status"
	"github.com/clinicq/clinicq/internal/platform/auth"
	"github.com/clinicq/clinicq/internal/realtime"
)

func newTestService() (*Service, *mockRepo, *fakePublisher) {
	repo := newMockRepo()
	pub := &fakePublisher{}
	svc := NewService(repo, testCatalog(), DefaultPolicy(), pub, time.UTC, zerolog.Nop())
	svc.now = func() time.Time { return testNow }
	return svc, repo, pub
}

var (
	reception = auth.NewSession("rina", auth.RoleReceptionist)
	nurse     = auth.NewSession("siti", auth.RoleNurse)
	doctor    = auth.NewSession("budi", auth.RoleDoctor)
)

// waiting stores a WAITING reservation on poly 1 with the given queue
// number and call count.
func waiting(repo *mockRepo, number, calls int) *Reservation {
	return repo.put(&Reservation{
		PatientID: int64(500 + number), PolyID: 1, ScheduleID: 20, StatusID: 3,
		Queue: &Queue{QueueNumber: number, NumberOfCalls: calls},
	})
}

func TestService_Register(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := context.Background()

	first, err := svc.Register(ctx, reception, RegisterRequest{PatientID: 1, PolyID: 1, ScheduleID: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Register(ctx, reception, RegisterRequest{PatientID: 2, PolyID: 1, ScheduleID: 20, BPJS: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	other, err := svc.Register(ctx, reception, RegisterRequest{PatientID: 3, PolyID: 2, ScheduleID: 21})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.Queue.QueueNumber != 1 || second.Queue.QueueNumber != 2 {
		t.Errorf("expected numbers 1 and 2, got %d and %d", first.Queue.QueueNumber, second.Queue.QueueNumber)
	}
	if other.Queue.QueueNumber != 1 {
		t.Errorf("numbering is per poly, got %d", other.Queue.QueueNumber)
	}
	if first.Status != status.Waiting || first.StatusID != 3 {
		t.Errorf("expected WAITING, got %s (%d)", first.Status, first.StatusID)
	}
	if first.Queue.NumberOfCalls != 0 || first.Queue.CallTime != nil {
		t.Errorf("expected fresh queue, got %+v", first.Queue)
	}
	if first.QueueDate != testDate {
		t.Errorf("expected queue date from schedule, got %s", first.QueueDate)
	}
	if len(pub.events) != 3 {
		t.Errorf("expected one snapshot per registration, got %d", len(pub.events))
	}
}

func TestService_Register_QuotaExceeded(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if _, err := svc.Register(ctx, reception, RegisterRequest{PatientID: int64(i), PolyID: 1, ScheduleID: 20}); err != nil {
			t.Fatalf("registration %d: unexpected error %v", i, err)
		}
	}
	_, err := svc.Register(ctx, reception, RegisterRequest{PatientID: 6, PolyID: 1, ScheduleID: 20})
	var qe *schedule.QuotaError
	if !errors.As(err, &qe) {
		t.Fatalf("expected QuotaError, got %v", err)
	}
	if qe.Quota != 5 || qe.Used != 5 || !errors.Is(err, schedule.ErrQuotaExceeded) {
		t.Errorf("unexpected quota error %+v", qe)
	}
	if len(repo.reservations) != 5 {
		t.Errorf("expected 5 stored reservations, got %d", len(repo.reservations))
	}
}

func TestService_Register_QuotaCountsCancelled(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.schedules[20].Quota = intPtr(1)
	repo.put(&Reservation{PolyID: 1, ScheduleID: 20, StatusID: 15, Queue: &Queue{QueueNumber: 1}})

	_, err := svc.Register(context.Background(), reception, RegisterRequest{PatientID: 1, PolyID: 1, ScheduleID: 20})
	if !errors.Is(err, schedule.ErrQuotaExceeded) {
		t.Errorf("expected quota exceeded, got %v", err)
	}
}

func TestService_Register_ConcurrentNumbersAreUnique(t *testing.T) {
	svc, _, _ := newTestService()
	var wg sync.WaitGroup
	numbers := make(chan int, 5)
	for i := 1; i <= 5; i++ {
		wg.Add(1)
		go func(patient int64) {
			defer wg.Done()
			res, err := svc.Register(context.Background(), reception, RegisterRequest{PatientID: patient, PolyID: 1, ScheduleID: 20})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			numbers <- res.Queue.QueueNumber
		}(int64(i))
	}
	wg.Wait()
	close(numbers)

	seen := make(map[int]bool)
	for n := range numbers {
		if seen[n] {
			t.Errorf("queue number %d assigned twice", n)
		}
		seen[n] = true
	}
	if len(seen) != 5 {
		t.Errorf("expected 5 distinct numbers, got %d", len(seen))
	}
}

func TestService_Register_Rejections(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, nurse, RegisterRequest{PatientID: 1, PolyID: 1, ScheduleID: 20}); !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("nurse: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Register(ctx, nil, RegisterRequest{PatientID: 1, PolyID: 1, ScheduleID: 20}); !errors.Is(err, auth.ErrNoSession) {
		t.Errorf("nil session: expected ErrNoSession, got %v", err)
	}
	if _, err := svc.Register(ctx, reception, RegisterRequest{PatientID: 1, PolyID: 2, ScheduleID: 20}); !errors.Is(err, ErrInvalid) {
		t.Errorf("poly mismatch: expected ErrInvalid, got %v", err)
	}
	if _, err := svc.Register(ctx, reception, RegisterRequest{PatientID: 1, PolyID: 1, ScheduleID: 99}); !errors.Is(err, schedule.ErrNotFound) {
		t.Errorf("unknown schedule: expected ErrNotFound, got %v", err)
	}
	var ve validator.ValidationErrors
	if _, err := svc.Register(ctx, reception, RegisterRequest{PolyID: 1}); !errors.As(err, &ve) {
		t.Errorf("missing fields: expected validation errors, got %v", err)
	}

	bound := auth.NewSession("desk-2", auth.RoleReceptionist)
	bound.PolyID = 2
	if _, err := svc.Register(ctx, bound, RegisterRequest{PatientID: 1, PolyID: 1, ScheduleID: 20}); !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("other poly: expected ErrForbidden, got %v", err)
	}

	gone := auth.NewSession("rina", auth.RoleReceptionist)
	gone.Logout()
	if _, err := svc.Register(ctx, gone, RegisterRequest{PatientID: 1, PolyID: 1, ScheduleID: 20}); !errors.Is(err, auth.ErrNoSession) {
		t.Errorf("logged out: expected ErrNoSession, got %v", err)
	}
}

func TestService_Transition_FullWorkflow(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	r := waiting(repo, 1, 0)

	steps := []struct {
		sess   *auth.Session
		action Action
		want   status.Name
	}{
		{nurse, ActionAnamnesa, status.Anamnesa},
		{nurse, ActionWaitingDoctor, status.WaitingDoctor},
		{doctor, ActionWithDoctor, status.WithDoctor},
		{doctor, ActionDone, status.Done},
	}
	for _, s := range steps {
		res, err := svc.Transition(ctx, s.sess, r.ID, s.action)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", s.action, err)
		}
		if res.To != s.want || res.Reservation.Status != s.want {
			t.Fatalf("%s: expected %s, got %s", s.action, s.want, res.To)
		}
	}

	stored := repo.reservations[r.ID]
	if stored.StatusID != 11 {
		t.Errorf("expected DONE id 11, got %d", stored.StatusID)
	}
	if stored.Queue.NumberOfCalls != 2 {
		t.Errorf("expected 2 calls, got %d", stored.Queue.NumberOfCalls)
	}
	if stored.Queue.CallTime == nil || !stored.Queue.CallTime.Equal(testNow) {
		t.Errorf("expected call time stamped, got %v", stored.Queue.CallTime)
	}
}

func TestService_Transition_InvalidCarriesCurrentStatus(t *testing.T) {
	svc, repo, _ := newTestService()
	r := waiting(repo, 1, 0)

	_, err := svc.Transition(context.Background(), doctor, r.ID, ActionDone)
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if te.Current != status.Waiting {
		t.Errorf("expected current WAITING, got %s", te.Current)
	}
	if repo.updates != 0 {
		t.Error("failed transition must not write")
	}
}

func TestService_Transition_RaceHasOneWinner(t *testing.T) {
	svc, repo, _ := newTestService()
	r := waiting(repo, 1, 0)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Transition(context.Background(), nurse, r.ID, ActionAnamnesa)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		var te *TransitionError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &te) && te.Current == status.Anamnesa:
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != 1 {
		t.Errorf("expected one winner and one conflict, got %d and %d", ok, conflicts)
	}
	if repo.reservations[r.ID].Queue.NumberOfCalls != 1 {
		t.Errorf("expected a single counted call, got %d", repo.reservations[r.ID].Queue.NumberOfCalls)
	}
}

func TestService_Transition_AutoNoShow(t *testing.T) {
	svc, repo, _ := newTestService()
	r := waiting(repo, 1, 3)

	res, err := svc.Transition(context.Background(), nurse, r.ID, ActionCall)
	if err != nil {
		t.Fatalf("auto no-show is not an error, got %v", err)
	}
	if !res.AutoNoShow || res.To != status.NoShow {
		t.Errorf("expected automatic NO_SHOW, got %+v", res)
	}
	stored := repo.reservations[r.ID]
	if stored.StatusID != 13 || stored.Queue.NumberOfCalls != 4 {
		t.Errorf("unexpected stored state: status %d calls %d", stored.StatusID, stored.Queue.NumberOfCalls)
	}
	if stored.Queue.CallTime != nil {
		t.Error("call time must not be stamped")
	}
}

func TestService_Transition_RolesAndErrors(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	r := waiting(repo, 1, 0)

	if _, err := svc.Transition(ctx, reception, r.ID, ActionAnamnesa); !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("receptionist anamnesa: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Transition(ctx, nurse, r.ID, ActionDone); !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("nurse done: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Transition(ctx, nurse, 999, ActionAnamnesa); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Transition(ctx, nurse, r.ID, Action("teleport")); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("unknown action: expected ErrUnknownAction, got %v", err)
	}
	admin := auth.NewSession("root", auth.RoleAdmin)
	if _, err := svc.Transition(ctx, admin, r.ID, ActionCancelled); err != nil {
		t.Errorf("admin may act at any station, got %v", err)
	}
}

func TestService_Transition_MissingQueue(t *testing.T) {
	svc, repo, _ := newTestService()
	r := repo.put(&Reservation{PolyID: 1, ScheduleID: 20, StatusID: 3})

	_, err := svc.Transition(context.Background(), nurse, r.ID, ActionAnamnesa)
	if !errors.Is(err, ErrMissingOperationalData) {
		t.Errorf("expected ErrMissingOperationalData, got %v", err)
	}
}

func TestService_CallNext(t *testing.T) {
	svc, repo, pub := newTestService()
	ctx := context.Background()
	waiting(repo, 3, 0)
	second := waiting(repo, 2, 0)
	repo.put(&Reservation{PolyID: 1, ScheduleID: 20, StatusID: 3, QueueDate: "2026-10-16", Queue: &Queue{QueueNumber: 1}})

	res, err := svc.CallNext(ctx, nurse, 1, StationAnamnesa)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Reservation.ID != second.ID || res.To != status.Anamnesa {
		t.Errorf("expected number 2 called to anamnesa, got %+v", res)
	}

	ev, ok := pub.last()
	if !ok || ev.Topic != realtime.Topic || ev.Type != realtime.EventQueueStatus {
		t.Fatalf("expected a queue status event, got %+v", ev)
	}
	snap, err := realtime.DecodeSnapshot(ev.Data)
	if err != nil {
		t.Fatal(err)
	}
	if n := snap["gigi"].QueueNumberAnamnesa; n == nil || *n != 2 {
		t.Errorf("expected gigi anamnesa 2 on display, got %v", n)
	}
	if _, ok := snap["anak"]; !ok {
		t.Error("expected every poly in the snapshot")
	}

	if _, err := svc.CallNext(ctx, doctor, 1, StationDoctor); !errors.Is(err, ErrNoneWaiting) {
		t.Errorf("expected ErrNoneWaiting, got %v", err)
	}
	if _, err := svc.CallNext(ctx, doctor, 1, StationAnamnesa); !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("doctor at anamnesa: expected ErrForbidden, got %v", err)
	}
}

func TestService_PublishFailureDoesNotFailOperation(t *testing.T) {
	svc, repo, pub := newTestService()
	pub.err = errors.New("hub closed")
	r := waiting(repo, 1, 0)

	if _, err := svc.Transition(context.Background(), nurse, r.ID, ActionAnamnesa); err != nil {
		t.Errorf("expected success despite publish failure, got %v", err)
	}
}

func TestService_ListResolvesNames(t *testing.T) {
	svc, repo, _ := newTestService()
	waiting(repo, 1, 0)
	repo.put(&Reservation{PolyID: 1, ScheduleID: 20, StatusID: 9, Queue: &Queue{QueueNumber: 2}})

	items, total, err := svc.List(context.Background(), ListFilter{Date: testDate, StatusID: 9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].Status != status.WithDoctor {
		t.Errorf("unexpected listing: total %d items %+v", total, items)
	}
}

func TestService_Snapshot(t *testing.T) {
	svc, repo, _ := newTestService()
	r := waiting(repo, 4, 0)
	if _, err := svc.Transition(context.Background(), nurse, r.ID, ActionAnamnesa); err != nil {
		t.Fatal(err)
	}
	snap, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap) != 3 {
		t.Errorf("expected 3 polies, got %d", len(snap))
	}
	if n := snap["gigi"].QueueNumberAnamnesa; n == nil || *n != 4 {
		t.Errorf("expected 4, got %v", n)
	}
	if snap["umum"].QueueNumberAnamnesa != nil {
		t.Error("expected null for an idle poly")
	}
}

func TestParseStation(t *testing.T) {
	if s, err := ParseStation("doctor"); err != nil || s != StationDoctor {
		t.Errorf("ParseStation(doctor) = %q, %v", s, err)
	}
	if _, err := ParseStation("pharmacy"); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}
