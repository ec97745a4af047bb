package reservation

import (
	"errors"
	"fmt"

	"github.com/clinicq/clinicq/internal/domain/status"
)

var (
	ErrNotFound = errors.New("reservation not found")
	// ErrMissingOperationalData is returned when a reservation has no queue
	// record to act on.
	ErrMissingOperationalData = errors.New("reservation has no queue record")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrUnknownAction          = errors.New("unknown action")
	ErrInvalid                = errors.New("invalid reservation")
	// ErrNoneWaiting is returned by CallNext when nobody is waiting.
	ErrNoneWaiting = errors.New("no reservation waiting")
)

// TransitionError carries the status the reservation was actually in so
// callers can re-render without refetching.
type TransitionError struct {
	Action  Action
	Current status.Name
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot apply %s to a reservation in status %s", e.Action, e.Current)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
