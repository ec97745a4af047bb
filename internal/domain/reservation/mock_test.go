package reservation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/clinicq/clinicq/internal/domain/schedule"
	"github.com/clinicq/clinicq/internal/domain/status"
	"github.com/clinicq/clinicq/internal/platform/websocket"
)

const testDate = "2026-10-17"

var testNow = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

// Status ids are deliberately out of workflow order.
func testCatalog() *status.Catalog {
	c, err := status.NewCatalog([]*status.Status{
		{ID: 3, StatusName: status.Waiting, Label: "Menunggu"},
		{ID: 7, StatusName: status.Anamnesa, Label: "Anamnesa"},
		{ID: 5, StatusName: status.WaitingDoctor, Label: "Menunggu Dokter"},
		{ID: 9, StatusName: status.WithDoctor, Label: "Dengan Dokter"},
		{ID: 11, StatusName: status.Done, Label: "Selesai"},
		{ID: 13, StatusName: status.NoShow, Label: "Tidak Hadir"},
		{ID: 15, StatusName: status.Cancelled, Label: "Dibatalkan"},
	})
	if err != nil {
		panic(err)
	}
	return c
}

type mockRepo struct {
	tx           sync.Mutex
	data         sync.Mutex
	polies       map[int64]string
	schedules    map[int64]*schedule.Schedule
	reservations map[int64]*Reservation
	nextID       int64
	updates      int
}

func newMockRepo() *mockRepo {
	m := &mockRepo{
		polies:       map[int64]string{1: "Poli Gigi", 2: "Poli Umum", 3: "Poli Anak"},
		schedules:    make(map[int64]*schedule.Schedule),
		reservations: make(map[int64]*Reservation),
	}
	m.schedules[20] = &schedule.Schedule{ID: 20, DoctorID: 10, PolyID: 1, Date: testDate, StartTime: "08:00:00", EndTime: "12:00:00", Quota: intPtr(5)}
	m.schedules[21] = &schedule.Schedule{ID: 21, DoctorID: 11, PolyID: 2, Date: testDate, StartTime: "08:00:00", EndTime: "12:00:00"}
	return m
}

func intPtr(v int) *int { return &v }

func clone(r *Reservation) *Reservation {
	c := *r
	if r.Queue != nil {
		q := *r.Queue
		c.Queue = &q
	}
	return &c
}

// WithTx serializes transactions, standing in for the row locks.
func (m *mockRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.tx.Lock()
	defer m.tx.Unlock()
	return fn(ctx)
}

func (m *mockRepo) LockPoly(_ context.Context, polyID int64) error {
	if _, ok := m.polies[polyID]; !ok {
		return schedule.ErrNotFound
	}
	return nil
}

func (m *mockRepo) LockSchedule(_ context.Context, id int64) (*schedule.Schedule, error) {
	m.data.Lock()
	defer m.data.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, schedule.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (m *mockRepo) CountBySchedule(_ context.Context, id int64) (int, error) {
	m.data.Lock()
	defer m.data.Unlock()
	n := 0
	for _, r := range m.reservations {
		if r.ScheduleID == id {
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) NextQueueNumber(_ context.Context, polyID int64, date string) (int, error) {
	m.data.Lock()
	defer m.data.Unlock()
	highest := 0
	for _, r := range m.reservations {
		if r.PolyID == polyID && r.QueueDate == date && r.Queue != nil && r.Queue.QueueNumber > highest {
			highest = r.Queue.QueueNumber
		}
	}
	return highest + 1, nil
}

func (m *mockRepo) Insert(_ context.Context, r *Reservation) error {
	m.data.Lock()
	defer m.data.Unlock()
	m.nextID++
	r.ID = m.nextID
	r.CreatedAt = testNow
	if r.Queue != nil {
		r.Queue.ID = 1000 + r.ID
	}
	r.PolyName = m.polies[r.PolyID]
	m.reservations[r.ID] = clone(r)
	return nil
}

// put stores a reservation directly, bypassing registration.
func (m *mockRepo) put(r *Reservation) *Reservation {
	m.data.Lock()
	defer m.data.Unlock()
	if r.ID == 0 {
		m.nextID++
		r.ID = m.nextID
	}
	if r.QueueDate == "" {
		r.QueueDate = testDate
	}
	r.PolyName = m.polies[r.PolyID]
	m.reservations[r.ID] = clone(r)
	return r
}

func (m *mockRepo) Get(_ context.Context, id int64, _ bool) (*Reservation, error) {
	m.data.Lock()
	defer m.data.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(r), nil
}

func (m *mockRepo) NextInStatus(_ context.Context, polyID int64, date string, statusID int64) (*Reservation, error) {
	m.data.Lock()
	defer m.data.Unlock()
	var best *Reservation
	for _, r := range m.reservations {
		if r.PolyID != polyID || r.QueueDate != date || r.StatusID != statusID || r.Queue == nil {
			continue
		}
		if best == nil || r.Queue.QueueNumber < best.Queue.QueueNumber {
			best = r
		}
	}
	if best == nil {
		return nil, nil
	}
	return clone(best), nil
}

func (m *mockRepo) Update(_ context.Context, r *Reservation) error {
	m.data.Lock()
	defer m.data.Unlock()
	if _, ok := m.reservations[r.ID]; !ok {
		return ErrNotFound
	}
	m.updates++
	m.reservations[r.ID] = clone(r)
	return nil
}

func (m *mockRepo) List(_ context.Context, f ListFilter) ([]*Reservation, int, error) {
	m.data.Lock()
	defer m.data.Unlock()
	var all []*Reservation
	for _, r := range m.reservations {
		if f.Date != "" && r.QueueDate != f.Date {
			continue
		}
		if f.PolyID != 0 && r.PolyID != f.PolyID {
			continue
		}
		if f.StatusID != 0 && r.StatusID != f.StatusID {
			continue
		}
		all = append(all, clone(r))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	if f.Offset >= len(all) {
		return nil, total, nil
	}
	all = all[f.Offset:]
	if f.Limit > 0 && f.Limit < len(all) {
		all = all[:f.Limit]
	}
	return all, total, nil
}

func (m *mockRepo) ListPolyNames(context.Context) ([]string, error) {
	m.data.Lock()
	defer m.data.Unlock()
	var out []string
	for _, n := range m.polies {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func (m *mockRepo) Called(_ context.Context, date string, statusIDs []int64) ([]Called, error) {
	m.data.Lock()
	defer m.data.Unlock()
	var out []Called
	for _, r := range m.reservations {
		if r.QueueDate != date || r.Queue == nil {
			continue
		}
		for _, id := range statusIDs {
			if r.StatusID == id {
				out = append(out, Called{PolyName: m.polies[r.PolyID], StatusID: id, QueueNumber: r.Queue.QueueNumber, CallTime: r.Queue.CallTime})
			}
		}
	}
	return out, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []websocket.Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, ev websocket.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *fakePublisher) last() (websocket.Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return websocket.Event{}, false
	}
	return p.events[len(p.events)-1], true
}
