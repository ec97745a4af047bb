package schedule

import "testing"

func TestSortByStart(t *testing.T) {
	items := []*Schedule{
		{ID: 3, Date: "2026-10-18", StartTime: "08:00:00"},
		{ID: 2, Date: "2026-10-17", StartTime: "13:00:00"},
		{ID: 1, Date: "2026-10-17", StartTime: "08:00:00"},
		{ID: 4, Date: "2026-10-17", StartTime: "08:00:00"},
	}
	SortByStart(items)
	want := []int64{1, 4, 2, 3}
	for i, s := range items {
		if s.ID != want[i] {
			t.Fatalf("position %d: got %d, want %d", i, s.ID, want[i])
		}
	}
}

func TestGroupByDoctor(t *testing.T) {
	items := []*Schedule{
		{ID: 1, DoctorID: 2, DoctorName: "dr. Zaki", StartTime: "13:00:00"},
		{ID: 2, DoctorID: 1, DoctorName: "dr. andi", StartTime: "10:00:00"},
		{ID: 3, DoctorID: 2, DoctorName: "dr. Zaki", StartTime: "08:00:00"},
		{ID: 4, DoctorID: 3, DoctorName: "dr. Budi", StartTime: "09:00:00"},
	}
	groups := GroupByDoctor(items)
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	names := []string{groups[0].DoctorName, groups[1].DoctorName, groups[2].DoctorName}
	if names[0] != "dr. andi" || names[1] != "dr. Budi" || names[2] != "dr. Zaki" {
		t.Errorf("unexpected doctor order: %v", names)
	}
	zaki := groups[2].Schedules
	if len(zaki) != 2 || zaki[0].ID != 3 || zaki[1].ID != 1 {
		t.Errorf("expected dr. Zaki's schedules by start time, got %v", zaki)
	}
}

func TestSortPolies_GeneralFirst(t *testing.T) {
	polies := []*Poly{
		{ID: 1, Name: "Poli Gigi"},
		{ID: 2, Name: "Poli Anak"},
		{ID: 3, Name: "Poli Umum"},
		{ID: 4, Name: "Poli Mata"},
	}
	SortPolies(polies, "umum")
	want := []string{"Poli Umum", "Poli Anak", "Poli Gigi", "Poli Mata"}
	for i, p := range polies {
		if p.Name != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, p.Name, want[i])
		}
	}
}

func TestSortPolies_NoGeneral(t *testing.T) {
	polies := []*Poly{{ID: 1, Name: "Poli Gigi"}, {ID: 2, Name: "Poli Anak"}}
	SortPolies(polies, "")
	if polies[0].Name != "Poli Anak" {
		t.Errorf("expected alphabetical order, got %s first", polies[0].Name)
	}
}
