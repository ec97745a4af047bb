package reservation

import (
	"time"

	"github.com/clinicq/clinicq/internal/domain/status"
)

// Queue carries the operational counters of a reservation. QueueNumber is
// assigned once at registration and never changes.
type Queue struct {
	ID                int64      `db:"id" json:"id"`
	QueueNumber       int        `db:"queue_number" json:"queue_number"`
	NumberOfCalls     int        `db:"number_of_calls" json:"number_of_calls"`
	CallTime          *time.Time `db:"call_time" json:"call_time"`
	ReReservationTime *time.Time `db:"re_reservation_time" json:"re_reservation_time"`
}

// Reservation is a patient's booking against a schedule. Only StatusID
// and the queue counters change after creation.
type Reservation struct {
	ID         int64       `db:"id" json:"id"`
	PatientID  int64       `db:"patient_id" json:"patient_id"`
	PolyID     int64       `db:"poly_id" json:"poly_id"`
	PolyName   string      `db:"poly_name" json:"poly_name,omitempty"`
	ScheduleID int64       `db:"schedule_id" json:"schedule_id"`
	StatusID   int64       `db:"status_id" json:"status_id"`
	Status     status.Name `db:"-" json:"status_name"`
	BPJS       bool        `db:"bpjs" json:"bpjs"`
	QueueDate  string      `db:"queue_date" json:"queue_date"`
	Queue      *Queue      `db:"-" json:"queue"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
}

// RegisterRequest is the body of POST /reservations.
type RegisterRequest struct {
	PatientID  int64 `json:"patient_id" validate:"required,gt=0"`
	PolyID     int64 `json:"poly_id" validate:"required,gt=0"`
	ScheduleID int64 `json:"schedule_id" validate:"required,gt=0"`
	BPJS       bool  `json:"bpjs"`
}

// ListFilter narrows reservation listings. Zero values are ignored.
type ListFilter struct {
	Date     string
	PolyID   int64
	StatusID int64
	Limit    int
	Offset   int
}

// Called is a reservation currently being served at a station, used to
// build the realtime snapshot.
type Called struct {
	PolyName    string
	StatusID    int64
	QueueNumber int
	CallTime    *time.Time
}

// Result is what a transition reports back to the caller. AutoNoShow is set
// when a call attempt exceeded the call limit and the reservation was moved
// to NO_SHOW instead; it is a success, not an error.
type Result struct {
	Reservation *Reservation `json:"reservation"`
	Action      Action       `json:"action"`
	From        status.Name  `json:"from"`
	To          status.Name  `json:"to"`
	AutoNoShow  bool         `json:"auto_no_show"`
}
