package schedule

import (
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("not found")

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04:05"
)

// Poly is a clinic department.
type Poly struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

type Doctor struct {
	ID       int64  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	PolyID   int64  `db:"poly_id" json:"poly_id"`
	PolyName string `db:"poly_name" json:"poly_name,omitempty"`
}

// Schedule is a doctor's bounded time slot on one date. Date is formatted
// with DateLayout and the clock fields with ClockLayout. A nil Quota means
// the slot accepts any number of reservations.
type Schedule struct {
	ID         int64  `db:"id" json:"id"`
	DoctorID   int64  `db:"doctor_id" json:"doctor_id"`
	DoctorName string `db:"doctor_name" json:"doctor_name,omitempty"`
	PolyID     int64  `db:"poly_id" json:"poly_id,omitempty"`
	Date       string `db:"date" json:"date"`
	StartTime  string `db:"start_time" json:"start_time"`
	EndTime    string `db:"end_time" json:"end_time"`
	Quota      *int   `db:"quota" json:"quota"`
}

// CreateRequest is the body of POST /schedules.
type CreateRequest struct {
	DoctorID  int64  `json:"doctor_id" validate:"required,gt=0"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	Quota     *int   `json:"quota" validate:"omitempty,gte=0"`
}

// Filter narrows schedule listings. Zero values are ignored. Month and Year
// apply together.
type Filter struct {
	DoctorID int64
	PolyID   int64
	Month    int
	Year     int
	Date     string
}

// ParseClock accepts "15:04" or "15:04:05" and returns the time of day
// formatted with ClockLayout.
func ParseClock(s string) (time.Time, error) {
	for _, layout := range []string{ClockLayout, "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time of day %q", s)
}
