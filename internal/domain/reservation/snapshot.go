package reservation

import (
	"time"

	"github.com/clinicq/clinicq/internal/realtime"
)

// BuildSnapshot assembles the queue status of every poly. Each poly starts
// with no called numbers; for each station the reservation with the latest
// call time wins, ties going to the higher queue number, so the result
// does not depend on row order.
func BuildSnapshot(polies []string, called []Called, anamnesaID, withDoctorID int64) realtime.Snapshot {
	snap := make(realtime.Snapshot, len(polies))
	for _, p := range polies {
		snap[realtime.NormalizePoly(p)] = realtime.PolyStatus{}
	}

	type pick struct {
		at     time.Time
		number int
	}
	best := make(map[string]map[int64]pick)

	for _, c := range called {
		if c.StatusID != anamnesaID && c.StatusID != withDoctorID {
			continue
		}
		key := realtime.NormalizePoly(c.PolyName)
		var at time.Time
		if c.CallTime != nil {
			at = *c.CallTime
		}
		if best[key] == nil {
			best[key] = make(map[int64]pick)
		}
		cur, seen := best[key][c.StatusID]
		if seen && (at.Before(cur.at) || (at.Equal(cur.at) && c.QueueNumber <= cur.number)) {
			continue
		}
		best[key][c.StatusID] = pick{at: at, number: c.QueueNumber}
	}

	for key, stations := range best {
		ps := snap[key]
		if p, ok := stations[anamnesaID]; ok {
			n := p.number
			ps.QueueNumberAnamnesa = &n
		}
		if p, ok := stations[withDoctorID]; ok {
			n := p.number
			ps.QueueNumberWithDoctor = &n
		}
		snap[key] = ps
	}
	return snap
}
