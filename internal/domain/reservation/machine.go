package reservation

import (
	"fmt"

	"github.com/clinicq/clinicq/internal/domain/status"
)

// Action names a station operation on a reservation. The values double as
// the URL segment of the transition endpoints.
type Action string

const (
	ActionAnamnesa      Action = "anamnesa"
	ActionWaitingDoctor Action = "waiting-doctor"
	ActionWithDoctor    Action = "with-doctor"
	ActionDone          Action = "done"
	ActionNoShow        Action = "no-show"
	ActionCancelled     Action = "cancelled"
	// ActionCall announces the reservation again without moving it.
	ActionCall Action = "call"
)

// DefaultCallLimit is how many calls a queue may receive before the next
// call attempt resolves to NO_SHOW.
const DefaultCallLimit = 3

type rule struct {
	from []status.Name
	// to is empty for actions that keep the current status.
	to status.Name
	// counts marks call-station actions subject to the call limit.
	counts bool
}

var rules = map[Action]rule{
	ActionAnamnesa:      {from: []status.Name{status.Waiting}, to: status.Anamnesa, counts: true},
	ActionWaitingDoctor: {from: []status.Name{status.Anamnesa}, to: status.WaitingDoctor},
	ActionWithDoctor:    {from: []status.Name{status.WaitingDoctor}, to: status.WithDoctor, counts: true},
	ActionDone:          {from: []status.Name{status.WithDoctor}, to: status.Done},
	ActionNoShow:        {from: []status.Name{status.Waiting, status.WaitingDoctor}, to: status.NoShow},
	ActionCancelled:     {from: []status.Name{status.Waiting}, to: status.Cancelled},
	ActionCall:          {from: []status.Name{status.Waiting, status.WaitingDoctor}, counts: true},
}

// Actions lists every action in workflow order.
var Actions = []Action{
	ActionCall, ActionAnamnesa, ActionWaitingDoctor, ActionWithDoctor,
	ActionDone, ActionNoShow, ActionCancelled,
}

func ParseAction(s string) (Action, error) {
	a := Action(s)
	if _, ok := rules[a]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
	return a, nil
}

// Counts reports whether a is a call-station action.
func (a Action) Counts() bool { return rules[a].counts }

func (r rule) allows(current status.Name) bool {
	for _, f := range r.from {
		if f == current {
			return true
		}
	}
	return false
}

// Allowed returns the actions legal from current, in workflow order.
func Allowed(current status.Name) []Action {
	var out []Action
	for _, a := range Actions {
		if rules[a].allows(current) {
			out = append(out, a)
		}
	}
	return out
}

// CanTransition reports whether from -> to is an edge of the workflow.
func CanTransition(from, to status.Name) bool {
	for _, r := range rules {
		if r.to == to && r.allows(from) {
			return true
		}
	}
	return false
}

// Outcome is the pure result of applying an action.
type Outcome struct {
	Action Action
	From   status.Name
	To     status.Name
	// NumberOfCalls is the queue's call count after the action.
	NumberOfCalls int
	// Called is set when the call time should be stamped.
	Called     bool
	AutoNoShow bool
}

// Policy holds the call-count rule. The count is cumulative over the whole
// queue, not reset between stations.
type Policy struct {
	CallLimit int
}

func DefaultPolicy() Policy { return Policy{CallLimit: DefaultCallLimit} }

// Apply validates a against current and computes the resulting status and
// call count. A call-station action that would push calls past the limit
// resolves to NO_SHOW with AutoNoShow set; the attempt is still counted.
func (p Policy) Apply(a Action, current status.Name, calls int) (Outcome, error) {
	r, ok := rules[a]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownAction, a)
	}
	if !r.allows(current) {
		return Outcome{}, &TransitionError{Action: a, Current: current}
	}

	out := Outcome{Action: a, From: current, To: r.to, NumberOfCalls: calls}
	if out.To == "" {
		out.To = current
	}
	if !r.counts {
		return out, nil
	}

	limit := p.CallLimit
	if limit <= 0 {
		limit = DefaultCallLimit
	}
	out.NumberOfCalls = calls + 1
	if out.NumberOfCalls > limit {
		out.To = status.NoShow
		out.AutoNoShow = true
		return out, nil
	}
	out.Called = true
	return out, nil
}
