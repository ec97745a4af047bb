package schedule

import (
	"errors"
	"fmt"
)

// CodeQuotaExceeded is the machine-readable code clients match on instead of
// the error text.
const CodeQuotaExceeded = "QUOTA_EXCEEDED"

var ErrQuotaExceeded = errors.New("schedule quota exceeded")

// QuotaError reports a registration rejected because the schedule is full.
type QuotaError struct {
	ScheduleID int64
	Quota      int
	Used       int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("schedule %d is full: %d of %d used", e.ScheduleID, e.Used, e.Quota)
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// QuotaInfo describes how much of a schedule is occupied. Quota and
// Remaining are nil for an unlimited schedule.
type QuotaInfo struct {
	ScheduleID int64 `json:"schedule_id"`
	Quota      *int  `json:"quota"`
	Used       int   `json:"used"`
	Remaining  *int  `json:"remaining"`
	IsFull     bool  `json:"is_full"`
}

// CanAccept reports whether one more reservation fits.
func CanAccept(quota *int, used int) bool {
	return quota == nil || used < *quota
}

// QuotaFor computes occupancy of s given the number of reservations already
// made against it.
func QuotaFor(s *Schedule, used int) QuotaInfo {
	info := QuotaInfo{ScheduleID: s.ID, Used: used}
	if s.Quota == nil {
		return info
	}
	q := *s.Quota
	remaining := q - used
	if remaining < 0 {
		remaining = 0
	}
	info.Quota = &q
	info.Remaining = &remaining
	info.IsFull = remaining == 0
	return info
}

// CheckQuota returns a *QuotaError when s cannot take another reservation.
func CheckQuota(s *Schedule, used int) error {
	if CanAccept(s.Quota, used) {
		return nil
	}
	return &QuotaError{ScheduleID: s.ID, Quota: *s.Quota, Used: used}
}
