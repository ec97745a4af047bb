package schedule

import (
	"sort"
	"strings"

	"github.com/clinicq/clinicq/internal/realtime"
)

// SortByStart orders schedules by date then ascending start time. Ties fall
// back to id so the order is stable across calls.
func SortByStart(items []*Schedule) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID < b.ID
	})
}

// DoctorGroup is one section of a schedule picker.
type DoctorGroup struct {
	DoctorID   int64       `json:"doctor_id"`
	DoctorName string      `json:"doctor_name"`
	Schedules  []*Schedule `json:"schedules"`
}

// GroupByDoctor groups schedules by doctor, doctors alphabetically and each
// group's schedules by start time.
func GroupByDoctor(items []*Schedule) []DoctorGroup {
	idx := make(map[int64]int)
	var groups []DoctorGroup
	for _, s := range items {
		i, ok := idx[s.DoctorID]
		if !ok {
			i = len(groups)
			idx[s.DoctorID] = i
			groups = append(groups, DoctorGroup{DoctorID: s.DoctorID, DoctorName: s.DoctorName})
		}
		groups[i].Schedules = append(groups[i].Schedules, s)
	}
	for i := range groups {
		SortByStart(groups[i].Schedules)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := strings.ToLower(groups[i].DoctorName), strings.ToLower(groups[j].DoctorName)
		if a != b {
			return a < b
		}
		return groups[i].DoctorID < groups[j].DoctorID
	})
	return groups
}

// SortPolies orders polies alphabetically with the general poly first.
// general is compared after normalization, so "umum" matches "Poli Umum".
func SortPolies(polies []*Poly, general string) {
	g := realtime.NormalizePoly(general)
	sort.SliceStable(polies, func(i, j int) bool {
		a, b := realtime.NormalizePoly(polies[i].Name), realtime.NormalizePoly(polies[j].Name)
		if g != "" && (a == g) != (b == g) {
			return a == g
		}
		if a != b {
			return a < b
		}
		return polies[i].ID < polies[j].ID
	})
}
