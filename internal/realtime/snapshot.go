package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// Topic is the single broadcast channel carrying queue status for all polies.
	Topic = "queue-status"
	// EventQueueStatus is the event type of every message on Topic.
	EventQueueStatus = "queue.status"
)

// PolyStatus holds the queue numbers currently called at each station of a
// poly. A nil number means nobody is being served there.
type PolyStatus struct {
	QueueNumberAnamnesa   *int `json:"queue_number_anamnesa"`
	QueueNumberWithDoctor *int `json:"queue_number_with_doctor"`
}

// Snapshot maps a normalized poly name to its called numbers. It is always
// published and consumed whole.
type Snapshot map[string]PolyStatus

// Lookup returns the entry for a poly given in any spelling accepted by
// NormalizePoly.
func (s Snapshot) Lookup(poly string) (PolyStatus, bool) {
	ps, ok := s[NormalizePoly(poly)]
	return ps, ok
}

// Clone returns an independent copy.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// NormalizePoly case-folds a poly name and strips a leading "poli" or "poly"
// token, so "Poli Gigi", "POLY gigi" and "gigi" all map to "gigi".
func NormalizePoly(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	if len(fields) > 1 && (fields[0] == "poli" || fields[0] == "poly") {
		fields = fields[1:]
	}
	return strings.Join(fields, " ")
}

// DecodeSnapshot parses an event payload. Keys are normalized on the way in
// so a publisher that sends display names still matches subscribers.
func DecodeSnapshot(raw json.RawMessage) (Snapshot, error) {
	var in map[string]PolyStatus
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decode queue status snapshot: %w", err)
	}
	out := make(Snapshot, len(in))
	for k, v := range in {
		out[NormalizePoly(k)] = v
	}
	return out, nil
}
