// Package summary computes the per-status counters and quota panel shown on
// station dashboards, so clients never recount reservations themselves.
package summary

import (
	"github.com/clinicq/clinicq/internal/domain/schedule"
	"github.com/clinicq/clinicq/internal/domain/status"
)

// Item is the part of a reservation the aggregator looks at.
type Item struct {
	PolyID     int64
	ScheduleID int64
	Status     status.Name
}

// Input is everything Summarize needs. PolyID and ScheduleID are zero when
// not selected.
type Input struct {
	Items      []Item
	PolyID     int64
	ScheduleID int64
	Schedules  []*schedule.Schedule
	Catalog    *status.Catalog
}

type StatusCount struct {
	StatusName status.Name `json:"status_name"`
	Count      int         `json:"count"`
	Label      string      `json:"label"`
}

type Summary struct {
	StatusCounts           []StatusCount        `json:"status_counts"`
	QuotaInfo              *schedule.QuotaInfo  `json:"quota_info"`
	AvailableSchedules     []*schedule.Schedule `json:"available_schedules"`
	AutoSelectedScheduleID *int64               `json:"auto_selected_schedule_id"`
}

// Summarize counts reservations per status in canonical order, restricted to
// in.PolyID when set. The quota panel describes the selected schedule, or
// the only schedule available when exactly one is. The output depends only
// on in.
func Summarize(in Input) Summary {
	counts := make(map[status.Name]int, len(status.Canonical))
	for _, it := range in.Items {
		if in.PolyID != 0 && it.PolyID != in.PolyID {
			continue
		}
		counts[it.Status]++
	}

	out := Summary{
		StatusCounts:       make([]StatusCount, 0, len(status.Canonical)),
		AvailableSchedules: make([]*schedule.Schedule, 0, len(in.Schedules)),
	}
	for _, n := range status.Canonical {
		label := string(n)
		if in.Catalog != nil {
			label = in.Catalog.Label(n)
		}
		out.StatusCounts = append(out.StatusCounts, StatusCount{StatusName: n, Count: counts[n], Label: label})
	}

	for _, s := range in.Schedules {
		if in.PolyID == 0 || s.PolyID == in.PolyID {
			out.AvailableSchedules = append(out.AvailableSchedules, s)
		}
	}
	schedule.SortByStart(out.AvailableSchedules)

	selected := in.ScheduleID
	if selected == 0 && len(out.AvailableSchedules) == 1 {
		id := out.AvailableSchedules[0].ID
		out.AutoSelectedScheduleID = &id
		selected = id
	}
	if selected == 0 {
		return out
	}
	for _, s := range out.AvailableSchedules {
		if s.ID != selected {
			continue
		}
		used := 0
		for _, it := range in.Items {
			if it.ScheduleID == selected {
				used++
			}
		}
		info := schedule.QuotaFor(s, used)
		out.QuotaInfo = &info
		break
	}
	return out
}
