package schedule

import (
	"context"
	"sort"
)

type mockRepo struct {
	polies    map[int64]*Poly
	doctors   map[int64]*Doctor
	schedules map[int64]*Schedule
	counts    map[int64]int
	nextID    int64
}

func newMockRepo() *mockRepo {
	m := &mockRepo{
		polies:    make(map[int64]*Poly),
		doctors:   make(map[int64]*Doctor),
		schedules: make(map[int64]*Schedule),
		counts:    make(map[int64]int),
		nextID:    100,
	}
	m.polies[1] = &Poly{ID: 1, Name: "Poli Gigi"}
	m.polies[2] = &Poly{ID: 2, Name: "Poli Umum"}
	m.polies[3] = &Poly{ID: 3, Name: "Poli Anak"}
	m.doctors[10] = &Doctor{ID: 10, Name: "drg. Wati", PolyID: 1, PolyName: "Poli Gigi"}
	m.doctors[11] = &Doctor{ID: 11, Name: "dr. Budi", PolyID: 2, PolyName: "Poli Umum"}
	return m
}

func (m *mockRepo) ListPolies(context.Context) ([]*Poly, error) {
	var out []*Poly
	for _, p := range m.polies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockRepo) GetPoly(_ context.Context, id int64) (*Poly, error) {
	p, ok := m.polies[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockRepo) ListDoctors(_ context.Context, polyID int64) ([]*Doctor, error) {
	var out []*Doctor
	for _, d := range m.doctors {
		if polyID == 0 || d.PolyID == polyID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockRepo) GetDoctor(_ context.Context, id int64) (*Doctor, error) {
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (m *mockRepo) Create(_ context.Context, s *Schedule) error {
	m.nextID++
	s.ID = m.nextID
	m.schedules[s.ID] = s
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id int64) (*Schedule, error) {
	s, ok := m.schedules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *mockRepo) List(_ context.Context, f Filter) ([]*Schedule, error) {
	var out []*Schedule
	for _, s := range m.schedules {
		if f.DoctorID != 0 && s.DoctorID != f.DoctorID {
			continue
		}
		if f.PolyID != 0 && s.PolyID != f.PolyID {
			continue
		}
		if f.Date != "" && s.Date != f.Date {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *mockRepo) CountReservations(_ context.Context, id int64) (int, error) {
	return m.counts[id], nil
}
